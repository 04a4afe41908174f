package pharmacy

import (
	"context"

	"github.com/google/uuid"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/validation"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a pharmacy owned by actor.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Pharmacy, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p := &Pharmacy{
		Name:          in.Name,
		OwnerUserID:   actor.UserID,
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
		LicenseNumber: in.LicenseNumber,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByOperator resolves the pharmacy an operator acts for.
func (s *Service) GetByOperator(ctx context.Context, userID uuid.UUID) (*Pharmacy, error) {
	if userID == uuid.Nil {
		return nil, apperr.NotFoundf("pharmacy not found")
	}
	return s.repo.GetByOperator(ctx, userID)
}

// ListByOperator returns every pharmacy the user operates. NotFound when
// there are none.
func (s *Service) ListByOperator(ctx context.Context, userID uuid.UUID) ([]*Pharmacy, error) {
	if userID == uuid.Nil {
		return nil, apperr.NotFoundf("pharmacy not found")
	}
	list, err := s.repo.ListByOperator(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFoundf("pharmacy not found")
	}
	return list, nil
}

// IDs returns the ids of pharmacies in order.
func IDs(pharmacies []*Pharmacy) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(pharmacies))
	for _, p := range pharmacies {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Pharmacy, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update applies the non-nil fields of in. Only the pharmacy's operator may
// change it.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Pharmacy, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && !p.OperatedBy(actor.UserID) {
		return nil, apperr.Forbiddenf("not authorized to modify this pharmacy")
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperr.InvalidArgumentf("name cannot be empty")
		}
		p.Name = *in.Name
	}
	if in.Email != nil {
		p.Email = *in.Email
	}
	if in.Phone != nil {
		p.Phone = *in.Phone
	}
	if in.Address != nil {
		p.Address = *in.Address
	}
	if in.LicenseNumber != nil {
		p.LicenseNumber = *in.LicenseNumber
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
