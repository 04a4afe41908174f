package refill

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows refill listings. Zero fields are ignored.
type ListFilter struct {
	PharmacyIDs []uuid.UUID
	PatientID   uuid.UUID
	Status      Status
}

type Repository interface {
	// Create inserts a pending request. A second pending request for the
	// same order fails with Conflict.
	Create(ctx context.Context, r *RefillRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*RefillRequest, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*RefillRequestDetail, error)
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	// Respond moves a pending request to status and records resp in one
	// write. Conflict is returned when the request is no longer pending.
	Respond(ctx context.Context, id uuid.UUID, status Status, resp PharmacyResponse) error
	// List returns matches ordered by requested_at, newest first.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*RefillRequestDetail, int, error)
	CountPending(ctx context.Context, pharmacyIDs []uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
