package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout sets a deadline on each request context. The handler runs on
// the request goroutine; when it fails because the request deadline passed, a
// 504 is returned. A zero timeout disables the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout:      timeout,
		ErrorHandler: timeoutError,
	})
}

func timeoutError(err error, c echo.Context) error {
	if !errors.Is(err, context.DeadlineExceeded) || c.Response().Committed {
		return err
	}
	if c.Request().Context().Err() == nil {
		// A tighter deadline inside the handler, not the request's.
		return err
	}
	return echo.NewHTTPError(http.StatusGatewayTimeout, map[string]string{
		"error": "request processing exceeded the allowed time limit",
		"code":  "timeout",
	}).SetInternal(err)
}
