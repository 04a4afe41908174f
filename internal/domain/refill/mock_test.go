package refill

import (
	"context"
	"errors"
	"sort"
	"sync"
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
)

// mockRepo mirrors the store's partial unique index: Create refuses a second
// pending request for the same order.
type mockRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*RefillRequest
	hasErr   error
	detailFn func(*RefillRequest) *RefillRequestDetail
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*RefillRequest)}
}

func clone(r *RefillRequest) *RefillRequest {
	cp := *r
	if r.Medications != nil {
		cp.Medications = make([]Medication, len(r.Medications))
		copy(cp.Medications, r.Medications)
	}
	if r.PharmacyResponse != nil {
		resp := *r.PharmacyResponse
		cp.PharmacyResponse = &resp
	}
	return &cp
}

func (m *mockRepo) Create(_ context.Context, r *RefillRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.OriginalOrderID == r.OriginalOrderID && existing.Status == StatusPending {
			return apperr.Conflictf("a refill request is already pending for this order")
		}
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.items[r.ID] = clone(r)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*RefillRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("refill request not found")
	}
	return clone(r), nil
}

func (m *mockRepo) GetDetail(ctx context.Context, id uuid.UUID) (*RefillRequestDetail, error) {
	r, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.detailFn != nil {
		return m.detailFn(r), nil
	}
	return &RefillRequestDetail{RefillRequest: *r}, nil
}

func (m *mockRepo) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if m.hasErr != nil {
		return false, m.hasErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return false, errors.New("duplicate check ran without a deadline")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.OriginalOrderID == orderID && r.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Respond(_ context.Context, id uuid.UUID, status Status, resp PharmacyResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok || r.Status != StatusPending {
		return apperr.Conflictf("refill request has already been processed")
	}
	r.Status = status
	r.PharmacyResponse = &resp
	r.UpdatedAt = resp.RespondedAt
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*RefillRequestDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*RefillRequest
	for _, r := range m.items {
		if len(f.PharmacyIDs) > 0 && !containsID(f.PharmacyIDs, r.PharmacyID) {
			continue
		}
		if f.PatientID != uuid.Nil && r.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RequestedAt.After(matched[j].RequestedAt) })

	out := []*RefillRequestDetail{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		out = append(out, &RefillRequestDetail{RefillRequest: *clone(matched[i])})
	}
	return out, len(matched), nil
}

func (m *mockRepo) CountPending(_ context.Context, pharmacyIDs []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.items {
		if containsID(pharmacyIDs, r.PharmacyID) && r.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFoundf("refill request not found")
	}
	delete(m.items, id)
	return nil
}

type stubOrders map[uuid.UUID]*order.Order

func (s stubOrders) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := s[id]
	if !ok {
		return nil, apperr.NotFoundf("order not found")
	}
	cp := *o
	return &cp, nil
}

type stubPharmacies map[uuid.UUID]*pharmacy.Pharmacy

func (s stubPharmacies) GetByID(_ context.Context, id uuid.UUID) (*pharmacy.Pharmacy, error) {
	p, ok := s[id]
	if !ok {
		return nil, apperr.NotFoundf("pharmacy not found")
	}
	return p, nil
}

func (s stubPharmacies) ListByOperator(_ context.Context, userID uuid.UUID) ([]*pharmacy.Pharmacy, error) {
	var out []*pharmacy.Pharmacy
	for _, p := range s {
		if p.OperatedBy(userID) {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubPatients map[uuid.UUID]*patient.Patient

func (s stubPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := s[id]
	if !ok {
		return nil, apperr.NotFoundf("patient not found")
	}
	return p, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
	err  error
}

func (n *recordingNotifier) Create(_ context.Context, note *notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) all() []*notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*notification.Notification(nil), n.sent...)
}

type fixture struct {
	svc        *Service
	repo       *mockRepo
	orders     stubOrders
	pharmacies stubPharmacies
	notifier   *recordingNotifier
	mailer     *email.MockSender

	patient  auth.Actor
	owner    auth.Actor
	pharmacy *pharmacy.Pharmacy
	other    *pharmacy.Pharmacy
	order    *order.Order
}

func newFixture() *fixture {
	patientID := uuid.New()
	ownerID := uuid.New()
	ph := &pharmacy.Pharmacy{ID: uuid.New(), Name: "Corner Drug", OwnerUserID: ownerID, Email: "rx@corner.example", IsActive: true}
	other := &pharmacy.Pharmacy{ID: uuid.New(), Name: "Uptown Rx", OwnerUserID: uuid.New(), Email: "hi@uptown.example", IsActive: true}
	o := &order.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20260101-ABCDEF12",
		PatientID:   patientID,
		PharmacyID:  ph.ID,
		Status:      order.StatusDelivered,
	}

	f := &fixture{
		repo:       newMockRepo(),
		orders:     stubOrders{o.ID: o},
		pharmacies: stubPharmacies{ph.ID: ph, other.ID: other},
		notifier:   &recordingNotifier{},
		mailer:     &email.MockSender{},
		patient:    auth.Actor{UserID: patientID, Role: auth.RolePatient},
		owner:      auth.Actor{UserID: ownerID, Role: auth.RolePharmacy},
		pharmacy:   ph,
		other:      other,
		order:      o,
	}
	f.svc = NewService(f.repo, Deps{
		Orders:     f.orders,
		Pharmacies: f.pharmacies,
		Patients: stubPatients{patientID: {
			ID: patientID, FirstName: "Ana", LastName: "Lopez", Email: "ana@example.com",
		}},
		Notifier: f.notifier,
		Mailer:   f.mailer,
		Tasks:    dispatch.NewSync(zerolog.Nop()),
	}, Config{QueryTimeout: time.Second}, zerolog.Nop())
	return f
}

func (f *fixture) input() CreateInput {
	return CreateInput{
		OriginalOrderID: f.order.ID.String(),
		PrescriptionID:  uuid.NewString(),
		PharmacyID:      f.pharmacy.ID.String(),
		Medications:     []byte(`[{"name":"Lisinopril","dosage":"10mg","frequency":"daily"}]`),
	}
}

// addOrder registers another order for the fixture's patient.
func (f *fixture) addOrder(status order.Status) *order.Order {
	o := &order.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-" + uuid.NewString()[:8],
		PatientID:   f.patient.UserID,
		PharmacyID:  f.pharmacy.ID,
		Status:      status,
	}
	f.orders[o.ID] = o
	return o
}
