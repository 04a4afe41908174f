package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxhub/pharmacy/internal/platform/auth"
)

func newTestHandler(extra ...uuid.UUID) (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc, func(_ context.Context, a auth.Actor) ([]uuid.UUID, error) {
		return append([]uuid.UUID{a.UserID}, extra...), nil
	})
	return h, svc, echo.New()
}

func actorRequest(method, target string, actor auth.Actor) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func TestHandler_List(t *testing.T) {
	pharmacyID := uuid.New()
	h, svc, e := newTestHandler(pharmacyID)
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RolePharmacy}
	require.NoError(t, svc.Create(context.Background(), sample(pharmacyID)))
	require.NoError(t, svc.Create(context.Background(), sample(uuid.New())))

	rec := httptest.NewRecorder()
	c := e.NewContext(actorRequest(http.MethodGet, "/api/v1/notifications", actor), rec)
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []Notification `json:"data"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, pharmacyID, body.Data[0].RecipientID)
}

func TestHandler_UnreadCount(t *testing.T) {
	h, svc, e := newTestHandler()
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}
	require.NoError(t, svc.Create(context.Background(), sample(actor.UserID)))

	rec := httptest.NewRecorder()
	c := e.NewContext(actorRequest(http.MethodGet, "/api/v1/notifications/unread-count", actor), rec)
	require.NoError(t, h.UnreadCount(c))
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestHandler_MarkRead(t *testing.T) {
	h, svc, e := newTestHandler()
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}
	n := sample(actor.UserID)
	require.NoError(t, svc.Create(context.Background(), n))

	rec := httptest.NewRecorder()
	c := e.NewContext(actorRequest(http.MethodPost, "/", actor), rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	require.NoError(t, h.MarkRead(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotNil(t, got.ReadAt)
}

func TestHandler_MarkRead_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}

	tests := []struct {
		name string
		id   string
		code int
	}{
		{"invalid id", "not-a-uuid", http.StatusBadRequest},
		{"unknown id", uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(actorRequest(http.MethodPost, "/", actor), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			err := h.MarkRead(c)
			he, ok := err.(*echo.HTTPError)
			require.True(t, ok, "expected echo.HTTPError, got %T", err)
			assert.Equal(t, tt.code, he.Code)
		})
	}
}

func TestHandler_RequiresActor(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := h.List(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
