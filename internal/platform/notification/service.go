package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

// Create persists n and marks it delivered to the in-app inbox. Missing
// priority and channels default to normal and in_app.
func (s *Service) Create(ctx context.Context, n *Notification) error {
	if n.RecipientID == uuid.Nil {
		return apperr.InvalidArgumentf("recipient is required")
	}
	if n.RecipientRole == "" {
		return apperr.InvalidArgumentf("recipient role is required")
	}
	if n.Type == "" || n.Title == "" || n.Message == "" {
		return apperr.InvalidArgumentf("type, title and message are required")
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if len(n.Channels) == 0 {
		n.Channels = []Channel{ChannelInApp}
	}
	n.Status = StatusPending

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	at := s.now()
	if err := s.repo.MarkDelivered(ctx, n.ID, at); err != nil {
		return err
	}
	n.Status = StatusDelivered
	n.DeliveredAt = &at

	s.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("recipient_id", n.RecipientID.String()).
		Str("type", n.Type).
		Msg("notification delivered")
	return nil
}

func (s *Service) List(ctx context.Context, recipients []uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	if len(recipients) == 0 {
		return []*Notification{}, 0, nil
	}
	return s.repo.ListByRecipients(ctx, recipients, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, recipients []uuid.UUID) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	return s.repo.CountUnread(ctx, recipients)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipients []uuid.UUID) (*Notification, error) {
	if err := s.repo.MarkRead(ctx, id, recipients, s.now()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
