package pharmacy

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
	read := api.Group("/pharmacies", auth.RequireRole(auth.RolePatient, auth.RolePharmacy))
	read.GET("", h.List)
	read.GET("/:id", h.Get)

	write := api.Group("/pharmacies", auth.RequireRole(auth.RolePharmacy))
	write.GET("/me", h.Mine)
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)
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
	p, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Mine(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetByOperator(c.Request().Context(), actor.UserID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) Update(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
