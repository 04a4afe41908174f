package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	own := api.Group("/patients", auth.RequireRole(auth.RolePatient))
	own.GET("/me", h.Me)
	own.PUT("/me", h.Upsert)

	read := api.Group("/patients", auth.RequireRole(auth.RolePatient, auth.RolePharmacy))
	read.GET("/:id", h.Get)
}

func (h *Handler) Upsert(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in UpsertInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Upsert(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), actor, actor.UserID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
