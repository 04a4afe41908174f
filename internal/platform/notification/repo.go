package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkRead stamps read_at on a notification addressed to one of
	// recipients. It fails with NotFound for any other id.
	MarkRead(ctx context.Context, id uuid.UUID, recipients []uuid.UUID, at time.Time) error
	ListByRecipients(ctx context.Context, recipients []uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	CountUnread(ctx context.Context, recipients []uuid.UUID) (int, error)
}
