package patient

import (
	"context"
	"time"

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

// Upsert writes the caller's own profile.
func (s *Service) Upsert(ctx context.Context, actor auth.Actor, in UpsertInput) (*Patient, error) {
	if !actor.IsPatient() {
		return nil, apperr.Forbiddenf("only patients have a patient profile")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p := &Patient{
		ID:        actor.UserID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
	}
	if in.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", in.DateOfBirth)
		if err != nil {
			return nil, apperr.InvalidArgumentf("dateOfBirth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &dob
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a patient profile. Patients may only read their own; pharmacy
// operators and admins may read any.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	if actor.IsPatient() && actor.UserID != id {
		return nil, apperr.Forbiddenf("not authorized to view this patient")
	}
	return s.repo.GetByID(ctx, id)
}

// GetByID is the unchecked lookup used by other services.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}
