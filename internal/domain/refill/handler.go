package refill

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
	patient := api.Group("/refill-requests", auth.RequireRole(auth.RolePatient))
	patient.POST("", h.Create)
	patient.GET("/patient", h.ListPatient)

	pharmacy := api.Group("/refill-requests", auth.RequireRole(auth.RolePharmacy))
	pharmacy.GET("/pharmacy", h.ListPharmacy)
	pharmacy.GET("/pharmacy/count", h.CountPending)
	pharmacy.POST("/:id/respond", h.Respond)

	shared := api.Group("/refill-requests", auth.RequireRole(auth.RolePatient, auth.RolePharmacy))
	shared.GET("/:id", h.Get)
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Respond(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refill request id")
	}
	var in RespondInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Respond(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refill request id")
	}
	d, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
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

func (h *Handler) ListPatient(c echo.Context) error {
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

func (h *Handler) CountPending(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	n, err := h.svc.CountPendingForPharmacy(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}
