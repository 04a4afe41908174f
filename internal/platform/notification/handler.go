package notification

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/pkg/pagination"
)

// RecipientsFunc lists the recipient ids whose notifications actor may see.
// A pharmacy operator sees their own and their pharmacy's.
type RecipientsFunc func(ctx context.Context, actor auth.Actor) ([]uuid.UUID, error)

type Handler struct {
	svc        *Service
	recipients RecipientsFunc
}

func NewHandler(svc *Service, recipients RecipientsFunc) *Handler {
	if recipients == nil {
		recipients = func(_ context.Context, a auth.Actor) ([]uuid.UUID, error) {
			return []uuid.UUID{a.UserID}, nil
		}
	}
	return &Handler{svc: svc, recipients: recipients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/notifications", auth.RequireRole(auth.RolePatient, auth.RolePharmacy))
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.POST("/:id/read", h.MarkRead)
}

func (h *Handler) resolve(c echo.Context) ([]uuid.UUID, error) {
	actor, err := auth.MustActor(c)
	if err != nil {
		return nil, err
	}
	ids, err := h.recipients(c.Request().Context(), actor)
	if err != nil {
		return nil, apperr.HTTPError(err)
	}
	return ids, nil
}

func (h *Handler) List(c echo.Context) error {
	ids, err := h.resolve(c)
	if err != nil {
		return err
	}
	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread"))
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), ids, unreadOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	ids, err := h.resolve(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), ids)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ids, err := h.resolve(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkRead(c.Request().Context(), id, ids)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}
