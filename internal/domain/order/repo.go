package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows order listings. Zero fields are ignored.
type ListFilter struct {
	PatientID   uuid.UUID
	PharmacyIDs []uuid.UUID
	Status      Status
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Order, int, error)
	// UpdateStatus performs a compare-and-set on status. deliveredAt is
	// written only when non-nil. Conflict is returned when the stored status
	// is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, deliveredAt *time.Time) error
}
