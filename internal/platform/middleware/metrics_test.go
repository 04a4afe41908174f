package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	m := getHTTPMetrics()
	e := echo.New()
	h := Metrics()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "refill request not found")
	})

	counter := m.requests.WithLabelValues("/api/v1/refill-requests/:id", http.MethodGet, "404")
	before := testutil.ToFloat64(counter)

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/refill-requests/abc", nil), httptest.NewRecorder())
		c.SetPath("/api/v1/refill-requests/:id")
		_ = h(c)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 requests counted, got %v", got)
	}
}

func TestMetrics_PlainErrorCountsAsServerError(t *testing.T) {
	m := getHTTPMetrics()
	e := echo.New()
	h := Metrics()(func(c echo.Context) error {
		return errors.New("connection reset")
	})

	failed := m.requests.WithLabelValues("/api/v1/orders", http.MethodGet, "500")
	ok := m.requests.WithLabelValues("/api/v1/orders", http.MethodGet, "200")
	beforeFailed, beforeOK := testutil.ToFloat64(failed), testutil.ToFloat64(ok)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/orders")
	_ = h(c)

	if got := testutil.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("expected 1 request counted as 500, got %v", got)
	}
	if got := testutil.ToFloat64(ok) - beforeOK; got != 0 {
		t.Errorf("expected no request counted as 200, got %v", got)
	}
}

func TestMetrics_CommittedResponseKeepsItsStatus(t *testing.T) {
	m := getHTTPMetrics()
	e := echo.New()
	h := Metrics()(func(c echo.Context) error {
		_ = c.NoContent(http.StatusAccepted)
		return errors.New("late failure")
	})

	counter := m.requests.WithLabelValues("/api/v1/refill-requests", http.MethodPost, "202")
	before := testutil.ToFloat64(counter)

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/refill-requests", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/refill-requests")
	_ = h(c)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected committed status to be counted, got %v", got)
	}
}
