package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Pharmacy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	// GetByOperator finds the pharmacy whose id or owner_user_id is userID.
	GetByOperator(ctx context.Context, userID uuid.UUID) (*Pharmacy, error)
	// ListByOperator returns every pharmacy userID operates, oldest first.
	ListByOperator(ctx context.Context, userID uuid.UUID) ([]*Pharmacy, error)
	Update(ctx context.Context, p *Pharmacy) error
	List(ctx context.Context, limit, offset int) ([]*Pharmacy, int, error)
}
