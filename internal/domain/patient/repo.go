package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patient demographics.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

// VitalRepository persists vitals measurements.
type VitalRepository interface {
	Create(ctx context.Context, v *Vital) error
	// Latest returns the most recent measurement for the patient, or nil
	// when none has been recorded.
	Latest(ctx context.Context, patientID uuid.UUID) (*Vital, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vital, int, error)
}
