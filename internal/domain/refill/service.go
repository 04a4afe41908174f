package refill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxhub/pharmacy/internal/domain/order"
	"github.com/rxhub/pharmacy/internal/domain/patient"
	"github.com/rxhub/pharmacy/internal/domain/pharmacy"
	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/dispatch"
	"github.com/rxhub/pharmacy/internal/platform/email"
	"github.com/rxhub/pharmacy/internal/platform/notification"
	"github.com/rxhub/pharmacy/internal/platform/validation"
)

type OrderLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type PharmacyLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*pharmacy.Pharmacy, error)
	ListByOperator(ctx context.Context, userID uuid.UUID) ([]*pharmacy.Pharmacy, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Notifier interface {
	Create(ctx context.Context, n *notification.Notification) error
}

// Deps are the collaborators the refill workflow reads from and notifies.
type Deps struct {
	Orders     OrderLookup
	Pharmacies PharmacyLookup
	Patients   PatientLookup
	Notifier   Notifier
	Mailer     email.Sender
	Tasks      dispatch.Submitter
}

type Config struct {
	// QueryTimeout bounds the duplicate pending check.
	QueryTimeout time.Duration
}

type Service struct {
	repo   Repository
	deps   Deps
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, deps Deps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	return &Service{
		repo:   repo,
		deps:   deps,
		cfg:    cfg,
		logger: logger.With().Str("component", "refill").Logger(),
		now:    time.Now,
	}
}

// Create opens a pending refill request for one of the actor's delivered or
// completed orders and notifies the pharmacy. Notification failures are
// logged and never fail the call.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*RefillRequestDetail, error) {
	req, o, err := s.prepareCreate(ctx, actor, in)
	if err != nil {
		getMetrics().refused.WithLabelValues("create", apperr.KindOf(err).String()).Inc()
		return nil, err
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			getMetrics().refused.WithLabelValues("create", apperr.Conflict.String()).Inc()
		}
		return nil, err
	}
	getMetrics().transitions.WithLabelValues(string(StatusPending)).Inc()

	s.logger.Info().
		Str("refill_request_id", req.ID.String()).
		Str("order_id", req.OriginalOrderID.String()).
		Str("pharmacy_id", req.PharmacyID.String()).
		Int("medications", len(req.Medications)).
		Msg("refill request created")

	s.notifyPharmacy(*req, o.OrderNumber)
	return s.detail(ctx, req), nil
}

func (s *Service) prepareCreate(ctx context.Context, actor auth.Actor, in CreateInput) (*RefillRequest, *order.Order, error) {
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	orderID := uuid.MustParse(in.OriginalOrderID)

	o, err := s.deps.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.PatientID != actor.UserID {
		return nil, nil, apperr.Forbiddenf("you can only request refills for your own orders")
	}
	if !o.Status.Fulfilled() {
		return nil, nil, apperr.InvalidStatef(
			"only delivered or completed orders can be refilled; order status is %s", o.Status)
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	pending, err := s.repo.HasPending(qctx, orderID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "check for pending refill request")
	}
	if pending {
		return nil, nil, apperr.Conflictf("a refill request is already pending for this order")
	}

	now := s.now().UTC()
	return &RefillRequest{
		ID:              uuid.New(),
		OriginalOrderID: orderID,
		PrescriptionID:  uuid.MustParse(in.PrescriptionID),
		PatientID:       actor.UserID,
		PharmacyID:      uuid.MustParse(in.PharmacyID),
		Status:          StatusPending,
		Medications:     decodeMedications(in.Medications),
		Notes:           in.Notes,
		RequestedAt:     now,
	}, o, nil
}

// Respond records the pharmacy's decision on a pending request and notifies
// the patient. The decision and the response are written together, once.
func (s *Service) Respond(ctx context.Context, actor auth.Actor, id uuid.UUID, in RespondInput) (*RefillRequestDetail, error) {
	req, ph, err := s.prepareRespond(ctx, actor, id, in)
	if err != nil {
		getMetrics().refused.WithLabelValues("respond", apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	status := Status(in.Status)
	resp := PharmacyResponse{Message: in.Message, RespondedAt: s.now().UTC(), RespondedBy: actor.UserID}
	if err := s.repo.Respond(ctx, id, status, resp); err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			getMetrics().refused.WithLabelValues("respond", apperr.Conflict.String()).Inc()
		}
		return nil, err
	}
	getMetrics().transitions.WithLabelValues(string(status)).Inc()

	req.Status = status
	req.PharmacyResponse = &resp
	req.UpdatedAt = resp.RespondedAt

	s.logger.Info().
		Str("refill_request_id", req.ID.String()).
		Str("status", string(status)).
		Str("responded_by", actor.UserID.String()).
		Msg("refill request answered")

	s.notifyPatient(*req, ph.Name)
	return s.detail(ctx, req), nil
}

func (s *Service) prepareRespond(ctx context.Context, actor auth.Actor, id uuid.UUID, in RespondInput) (*RefillRequest, *pharmacy.Pharmacy, error) {
	if !Status(in.Status).Decision() {
		return nil, nil, apperr.InvalidArgumentf("status must be approved or rejected")
	}
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != StatusPending {
		return nil, nil, apperr.Conflictf("refill request has already been processed")
	}
	ph, err := s.deps.Pharmacies.GetByID(ctx, req.PharmacyID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, nil, apperr.Forbiddenf("not authorized to respond to this refill request")
		}
		return nil, nil, err
	}
	if !ph.OperatedBy(actor.UserID) {
		return nil, nil, apperr.Forbiddenf("not authorized to respond to this refill request")
	}
	return req, ph, nil
}

// Get returns one request to its patient or to an operator of its pharmacy.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*RefillRequestDetail, error) {
	d, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case auth.RoleAdmin:
		return d, nil
	case auth.RolePatient:
		if d.PatientID == actor.UserID {
			return d, nil
		}
	case auth.RolePharmacy:
		if actor.UserID == d.PharmacyID {
			return d, nil
		}
		ph, err := s.deps.Pharmacies.GetByID(ctx, d.PharmacyID)
		if err != nil && apperr.KindOf(err) != apperr.NotFound {
			return nil, err
		}
		if ph != nil && ph.OperatedBy(actor.UserID) {
			return d, nil
		}
	}
	return nil, apperr.Forbiddenf("not authorized to view this refill request")
}

// ListForPharmacy lists the requests addressed to any pharmacy the actor
// operates. An empty filter means pending; "all" disables filtering.
func (s *Service) ListForPharmacy(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]*RefillRequestDetail, int, error) {
	st, err := parseFilter(status, StatusPending)
	if err != nil {
		return nil, 0, err
	}
	ids, err := s.operatedPharmacies(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{PharmacyIDs: ids, Status: st}, limit, offset)
}

// ListForPatient lists the actor's own requests, optionally by status.
func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, status string, limit, offset int) ([]*RefillRequestDetail, int, error) {
	st, err := parseFilter(status, "")
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, ListFilter{PatientID: actor.UserID, Status: st}, limit, offset)
}

func (s *Service) CountPendingForPharmacy(ctx context.Context, actor auth.Actor) (int, error) {
	ids, err := s.operatedPharmacies(ctx, actor)
	if err != nil {
		return 0, err
	}
	return s.repo.CountPending(ctx, ids)
}

func (s *Service) operatedPharmacies(ctx context.Context, actor auth.Actor) ([]uuid.UUID, error) {
	list, err := s.deps.Pharmacies.ListByOperator(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFoundf("pharmacy not found")
	}
	return pharmacy.IDs(list), nil
}

// CountPending counts pending requests for a pharmacy id without an actor.
// It backs the maintenance CLI.
func (s *Service) CountPending(ctx context.Context, pharmacyID uuid.UUID) (int, error) {
	return s.repo.CountPending(ctx, []uuid.UUID{pharmacyID})
}

// Delete removes a request outright. It is a maintenance operation with no
// HTTP route.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Warn().Str("refill_request_id", id.String()).Msg("refill request deleted")
	return nil
}

// detail reloads req with its joins. The write has already committed, so a
// failed reload falls back to the bare record.
func (s *Service) detail(ctx context.Context, req *RefillRequest) *RefillRequestDetail {
	d, err := s.repo.GetDetail(ctx, req.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("refill_request_id", req.ID.String()).Msg("reload refill request")
		return &RefillRequestDetail{RefillRequest: *req}
	}
	return d
}

func parseFilter(raw string, def Status) (Status, error) {
	switch raw {
	case "":
		return def, nil
	case "all":
		return "", nil
	}
	st := Status(raw)
	if !st.Valid() {
		return "", apperr.InvalidArgumentf("status must be one of pending, approved, rejected, all")
	}
	return st, nil
}

func (s *Service) patientName(ctx context.Context, id uuid.UUID) (string, *patient.Patient) {
	p, err := s.deps.Patients.GetByID(ctx, id)
	if err != nil {
		s.logger.Debug().Err(err).Str("patient_id", id.String()).Msg("patient lookup for notification")
		return "A patient", nil
	}
	if name := p.FullName(); name != "" {
		return name, p
	}
	return "A patient", p
}

func medicationLines(meds []Medication) []email.MedicationLine {
	lines := make([]email.MedicationLine, 0, len(meds))
	for _, m := range meds {
		lines = append(lines, email.MedicationLine{Name: m.Name, Dosage: m.Dosage, Frequency: m.Frequency})
	}
	return lines
}

func orderRef(number string, id uuid.UUID) string {
	if number != "" {
		return number
	}
	return fmt.Sprintf("#%s", id.String()[:8])
}
