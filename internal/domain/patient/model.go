package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Gender      string     `db:"gender" json:"gender"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	BloodGroup  *string    `db:"blood_group" json:"blood_group,omitempty"`
	Allergies   *string    `db:"allergies" json:"allergies,omitempty"`
	Medications *string    `db:"medications" json:"medications,omitempty"`
	Conditions  *string    `db:"conditions" json:"conditions,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Age returns the patient's age in whole years, or -1 when the birth date is
// unknown.
func (p *Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	years := now.Year() - p.BirthDate.Year()
	if now.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	return years
}

// Vital is a single vitals measurement for a patient.
type Vital struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	SystolicBP  *int      `db:"systolic_bp" json:"systolic_bp,omitempty"`
	DiastolicBP *int      `db:"diastolic_bp" json:"diastolic_bp,omitempty"`
	HeartRate   *int      `db:"heart_rate" json:"heart_rate,omitempty"`
	TempCelsius *float64  `db:"temp_celsius" json:"temp_celsius,omitempty"`
	SpO2        *int      `db:"spo2" json:"spo2,omitempty"`
	WeightKg    *float64  `db:"weight_kg" json:"weight_kg,omitempty"`
	HeightCm    *float64  `db:"height_cm" json:"height_cm,omitempty"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
