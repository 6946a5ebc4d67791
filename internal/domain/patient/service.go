package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	patients Repository
	vitals   VitalRepository
}

func NewService(patients Repository, vitals VitalRepository) *Service {
	return &Service{patients: patients, vitals: vitals}
}

var validGenders = map[string]bool{
	"male": true, "female": true, "other": true, "unknown": true,
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	if p.Gender == "" {
		p.Gender = "unknown"
	}
	if !validGenders[p.Gender] {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	if p.Gender != "" && !validGenders[p.Gender] {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) RecordVital(ctx context.Context, v *Vital) error {
	if v.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now()
	}
	return s.vitals.Create(ctx, v)
}

func (s *Service) ListVitals(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vital, int, error) {
	return s.vitals.ListByPatient(ctx, patientID, limit, offset)
}

// BuildInterviewContext summarizes a patient's demographics and latest
// vitals into the free-text blob an interview is started with.
func (s *Service) BuildInterviewContext(ctx context.Context, patientID uuid.UUID) (string, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("load patient: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s", p.FullName)
	if age := p.Age(time.Now()); age >= 0 {
		fmt.Fprintf(&b, ", %d years old", age)
	}
	fmt.Fprintf(&b, ", %s.", p.Gender)

	if p.BloodGroup != nil {
		fmt.Fprintf(&b, " Blood group %s.", *p.BloodGroup)
	}
	if p.Allergies != nil && *p.Allergies != "" {
		fmt.Fprintf(&b, " Known allergies: %s.", *p.Allergies)
	}
	if p.Medications != nil && *p.Medications != "" {
		fmt.Fprintf(&b, " Current medications: %s.", *p.Medications)
	}
	if p.Conditions != nil && *p.Conditions != "" {
		fmt.Fprintf(&b, " Known conditions: %s.", *p.Conditions)
	}

	latest, err := s.vitals.Latest(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("load vitals: %w", err)
	}
	if latest != nil {
		b.WriteString(" Latest vitals:")
		if latest.SystolicBP != nil && latest.DiastolicBP != nil {
			fmt.Fprintf(&b, " BP %d/%d mmHg,", *latest.SystolicBP, *latest.DiastolicBP)
		}
		if latest.HeartRate != nil {
			fmt.Fprintf(&b, " HR %d bpm,", *latest.HeartRate)
		}
		if latest.TempCelsius != nil {
			fmt.Fprintf(&b, " temp %.1f C,", *latest.TempCelsius)
		}
		if latest.SpO2 != nil {
			fmt.Fprintf(&b, " SpO2 %d%%,", *latest.SpO2)
		}
		if latest.WeightKg != nil {
			fmt.Fprintf(&b, " weight %.1f kg,", *latest.WeightKg)
		}
	}

	return strings.TrimRight(b.String(), ","), nil
}
