package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxhub/pharmacy/internal/platform/auth"
)

func TestHandler_Create(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	body := `{"pharmacyId":"` + f.pharmacy.ID.String() + `","items":[{"name":"Aspirin","quantity":2,"unitPrice":4}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), f.patient))
	rec := httptest.NewRecorder()

	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalAmount":8`)
}

func TestHandler_UpdateStatus(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	o, err := f.svc.Create(context.Background(), f.patient, f.input())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"shipped"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), f.operator))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	err = h.UpdateStatus(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), f.operator))
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())
	require.NoError(t, h.UpdateStatus(c))
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
}

func TestHandler_ListPharmacy(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	_, err := f.svc.Create(context.Background(), f.patient, f.input())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/pharmacy?status=pending", nil)
	req = req.WithContext(auth.WithActor(req.Context(), f.operator))
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListPharmacy(e.NewContext(req, rec)))
	assert.Contains(t, rec.Body.String(), `"total":1`)
}
