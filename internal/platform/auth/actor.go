package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Role is the coarse-grained role carried by every authenticated caller.
type Role string

const (
	RolePatient  Role = "patient"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies the caller of a domain operation. For patients UserID is
// also the patient id; for pharmacy operators it is either the pharmacy id or
// the pharmacy owner's user id.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) IsPatient() bool  { return a.Role == RolePatient }
func (a Actor) IsPharmacy() bool { return a.Role == RolePharmacy }

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor stored by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// MustActor extracts the actor from an echo request, failing with 401 when the
// request was not authenticated.
func MustActor(c echo.Context) (Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return a, nil
}

func setActor(c echo.Context, a Actor) {
	c.Set("actor_id", a.UserID.String())
	c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), a)))
}
