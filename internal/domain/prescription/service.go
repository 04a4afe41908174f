package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rxhub/pharmacy/internal/domain/pharmacy"
	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/validation"
)

// PharmacyLookup resolves the pharmacy a pharmacy operator acts for.
type PharmacyLookup interface {
	GetByOperator(ctx context.Context, userID uuid.UUID) (*pharmacy.Pharmacy, error)
}

type Service struct {
	repo       Repository
	pharmacies PharmacyLookup
	now        func() time.Time
}

func NewService(repo Repository, pharmacies PharmacyLookup) *Service {
	return &Service{repo: repo, pharmacies: pharmacies, now: time.Now}
}

// Create records a prescription uploaded by a patient.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Prescription, error) {
	if !actor.IsPatient() {
		return nil, apperr.Forbiddenf("only patients can submit prescriptions")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Prescription{
		ID:                 uuid.New(),
		PatientID:          actor.UserID,
		DoctorName:         in.DoctorName,
		Medications:        in.Medications,
		Status:             StatusPending,
		IssuedAt:           now,
		PrescriptionNumber: newNumber(now),
	}
	if in.IssuedAt != nil {
		p.IssuedAt = *in.IssuedAt
	}
	if in.PharmacyID != "" {
		id := uuid.MustParse(in.PharmacyID)
		p.PharmacyID = &id
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a prescription visible to actor: its patient, or the operator of
// the pharmacy it is assigned to.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListByPatient(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, actor.UserID, limit, offset)
}

// UpdateStatus lets a pharmacy operator verify, fill or reject a prescription.
// Verifying an unassigned prescription assigns it to the operator's pharmacy.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateStatusInput) (*Prescription, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	next := Status(in.Status)

	if !actor.IsPharmacy() {
		return nil, apperr.Forbiddenf("only pharmacies can change prescription status")
	}
	ph, err := s.pharmacies.GetByOperator(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PharmacyID != nil && *p.PharmacyID != ph.ID {
		return nil, apperr.Forbiddenf("prescription is assigned to another pharmacy")
	}
	if !p.Status.CanTransition(next) {
		return nil, apperr.InvalidStatef("cannot move prescription from %s to %s", p.Status, next)
	}

	var assign *uuid.UUID
	if p.PharmacyID == nil {
		assign = &ph.ID
	}
	if err := s.repo.UpdateStatus(ctx, id, p.Status, next, assign); err != nil {
		return nil, err
	}
	p.Status = next
	if assign != nil {
		p.PharmacyID = assign
	}
	p.UpdatedAt = s.now()
	return p, nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, p *Prescription) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RolePatient:
		if p.PatientID == actor.UserID {
			return nil
		}
	case auth.RolePharmacy:
		if p.PharmacyID == nil {
			return nil
		}
		ph, err := s.pharmacies.GetByOperator(ctx, actor.UserID)
		if err != nil && apperr.KindOf(err) != apperr.NotFound {
			return err
		}
		if ph != nil && ph.ID == *p.PharmacyID {
			return nil
		}
	}
	return apperr.Forbiddenf("not authorized to view this prescription")
}

func newNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("RX-%s-%s", at.Format("20060102"), suffix)
}
