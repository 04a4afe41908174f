package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts p or replaces the profile fields of an existing row.
	Upsert(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}
