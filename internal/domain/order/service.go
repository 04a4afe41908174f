package order

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxhub/pharmacy/internal/domain/pharmacy"
	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/validation"
)

// PharmacyLookup resolves pharmacies for order placement and operator checks.
type PharmacyLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*pharmacy.Pharmacy, error)
	ListByOperator(ctx context.Context, userID uuid.UUID) ([]*pharmacy.Pharmacy, error)
}

type Service struct {
	repo       Repository
	pharmacies PharmacyLookup
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, pharmacies PharmacyLookup, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		pharmacies: pharmacies,
		logger:     logger.With().Str("component", "order").Logger(),
		now:        time.Now,
	}
}

// Create places an order for the calling patient.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Order, error) {
	if !actor.IsPatient() {
		return nil, apperr.Forbiddenf("only patients can place orders")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	ph, err := s.pharmacies.GetByID(ctx, uuid.MustParse(in.PharmacyID))
	if err != nil {
		return nil, err
	}
	if !ph.IsActive {
		return nil, apperr.InvalidStatef("pharmacy %s is not accepting orders", ph.Name)
	}

	o := &Order{
		ID:          uuid.New(),
		OrderNumber: newOrderNumber(s.now().UTC()),
		PatientID:   actor.UserID,
		PharmacyID:  ph.ID,
		Status:      StatusPending,
		Items:       in.Items,
		TotalAmount: total(in.Items),
		Notes:       in.Notes,
	}
	if in.PrescriptionID != "" {
		id := uuid.MustParse(in.PrescriptionID)
		o.PrescriptionID = &id
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", o.ID.String()).Str("order_number", o.OrderNumber).Msg("order placed")
	return o, nil
}

// GetByID is the unchecked lookup consumed by the refill workflow.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// Get returns an order visible to actor.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]*Order, int, error) {
	st, err := parseFilter(status)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{PatientID: actor.UserID, Status: st}, limit, offset)
}

func (s *Service) ListForPharmacy(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]*Order, int, error) {
	st, err := parseFilter(status)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.pharmacies.ListByOperator(ctx, actor.UserID)
	if err != nil {
		return nil, 0, err
	}
	if len(list) == 0 {
		return nil, 0, apperr.NotFoundf("pharmacy not found")
	}
	return s.repo.List(ctx, ListFilter{PharmacyIDs: pharmacy.IDs(list), Status: st}, limit, offset)
}

// UpdateStatus advances an order along its fulfillment workflow. Pharmacy
// operators drive every transition; a patient may only cancel their own
// pending order.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateStatusInput) (*Order, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	next := Status(in.Status)

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case auth.RolePatient:
		if o.PatientID != actor.UserID {
			return nil, apperr.Forbiddenf("not authorized to modify this order")
		}
		if next != StatusCancelled || o.Status != StatusPending {
			return nil, apperr.Forbiddenf("patients can only cancel pending orders")
		}
	default:
		if err := s.authorizePharmacy(ctx, actor, o); err != nil {
			return nil, err
		}
	}
	if !o.Status.CanTransition(next) {
		return nil, apperr.InvalidStatef("cannot move order from %s to %s", o.Status, next)
	}

	var deliveredAt *time.Time
	if next == StatusDelivered {
		at := s.now().UTC()
		deliveredAt = &at
	}
	if err := s.repo.UpdateStatus(ctx, id, o.Status, next, deliveredAt); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("from", string(o.Status)).
		Str("to", string(next)).
		Msg("order status changed")

	o.Status = next
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	o.UpdatedAt = s.now()
	return o, nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, o *Order) error {
	if actor.IsPatient() {
		if o.PatientID != actor.UserID {
			return apperr.Forbiddenf("not authorized to view this order")
		}
		return nil
	}
	return s.authorizePharmacy(ctx, actor, o)
}

func (s *Service) authorizePharmacy(ctx context.Context, actor auth.Actor, o *Order) error {
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	if !actor.IsPharmacy() {
		return apperr.Forbiddenf("not authorized to access this order")
	}
	ph, err := s.pharmacies.GetByID(ctx, o.PharmacyID)
	if err != nil {
		return err
	}
	if !ph.OperatedBy(actor.UserID) {
		return apperr.Forbiddenf("order belongs to another pharmacy")
	}
	return nil
}

func parseFilter(status string) (Status, error) {
	if status == "" || status == "all" {
		return "", nil
	}
	st := Status(status)
	if !st.Valid() {
		return "", apperr.InvalidArgumentf("unknown order status %q", status)
	}
	return st, nil
}

func total(items []Item) float64 {
	var sum float64
	for _, it := range items {
		sum += float64(it.Quantity) * it.UnitPrice
	}
	return math.Round(sum*100) / 100
}

func newOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}
