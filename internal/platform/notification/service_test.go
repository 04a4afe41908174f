package notification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Notification
	// failCreate makes Create return this error.
	failCreate error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Notification)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("notification not found")
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return apperr.NotFoundf("notification not found")
	}
	n.Status = StatusDelivered
	n.DeliveredAt = &at
	return nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID, recipients []uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || !contains(recipients, n.RecipientID) {
		return apperr.NotFoundf("notification not found")
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return nil
}

func (m *mockRepo) ListByRecipients(_ context.Context, recipients []uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Notification
	for _, n := range m.items {
		if !contains(recipients, n.RecipientID) || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) CountUnread(ctx context.Context, recipients []uuid.UUID) (int, error) {
	_, total, err := m.ListByRecipients(ctx, recipients, true, 1<<30, 0)
	return total, err
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func sample(recipient uuid.UUID) *Notification {
	return &Notification{
		RecipientID:   recipient,
		RecipientRole: "pharmacy",
		Type:          TypeRefillRequest,
		Title:         "New refill request",
		Message:       "Jane Doe requested a refill of ORD-1",
	}
}

func TestService_Create_DefaultsAndDelivers(t *testing.T) {
	svc, repo := newTestService()
	n := sample(uuid.New())

	require.NoError(t, svc.Create(context.Background(), n))

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, PriorityNormal, n.Priority)
	assert.Equal(t, []Channel{ChannelInApp}, n.Channels)
	assert.Equal(t, StatusDelivered, n.Status)
	require.NotNil(t, n.DeliveredAt)

	stored, err := repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)
}

func TestService_Create_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name   string
		mutate func(n *Notification)
	}{
		{"no recipient", func(n *Notification) { n.RecipientID = uuid.Nil }},
		{"no role", func(n *Notification) { n.RecipientRole = "" }},
		{"no title", func(n *Notification) { n.Title = "" }},
		{"no message", func(n *Notification) { n.Message = "" }},
		{"no type", func(n *Notification) { n.Type = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := sample(uuid.New())
			tt.mutate(n)
			err := svc.Create(context.Background(), n)
			assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
		})
	}
}

func TestService_Create_RepoFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.failCreate = apperr.Wrap(apperr.Internal, context.DeadlineExceeded, "insert notification")
	err := svc.Create(context.Background(), sample(uuid.New()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_ListUnreadAndMarkRead(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	operator, pharmacyID, other := uuid.New(), uuid.New(), uuid.New()

	a := sample(pharmacyID)
	b := sample(operator)
	c := sample(other)
	for _, n := range []*Notification{a, b, c} {
		require.NoError(t, svc.Create(ctx, n))
	}

	recipients := []uuid.UUID{operator, pharmacyID}
	items, total, err := svc.List(ctx, recipients, false, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	count, err := svc.UnreadCount(ctx, recipients)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	read, err := svc.MarkRead(ctx, a.ID, recipients)
	require.NoError(t, err)
	assert.True(t, read.IsRead())

	count, err = svc.UnreadCount(ctx, recipients)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.MarkRead(ctx, c.ID, recipients)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "cannot read someone else's notification")
}

func TestService_EmptyRecipients(t *testing.T) {
	svc, _ := newTestService()
	items, total, err := svc.List(context.Background(), nil, false, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	n, err := svc.UnreadCount(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
