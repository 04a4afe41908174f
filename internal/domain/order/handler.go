package order

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("/orders", auth.RequireRole(auth.RolePatient))
	patient.POST("", h.Create)
	patient.GET("", h.ListMine)

	pharmacy := api.Group("/orders", auth.RequireRole(auth.RolePharmacy))
	pharmacy.GET("/pharmacy", h.ListPharmacy)

	shared := api.Group("/orders", auth.RequireRole(auth.RolePatient, auth.RolePharmacy))
	shared.GET("/:id", h.Get)
	shared.PATCH("/:id/status", h.UpdateStatus)
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
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
	o, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListMine(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), actor, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) ListPharmacy(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPharmacy(c.Request().Context(), actor, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateStatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}
