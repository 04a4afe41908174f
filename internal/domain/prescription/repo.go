package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	// UpdateStatus moves the prescription from one status to another and
	// optionally assigns it to a pharmacy. It fails with Conflict when the
	// stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, pharmacyID *uuid.UUID) error
}
