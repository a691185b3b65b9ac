package logorule

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/diagnosisview/dvserver/internal/platform/auth"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the admin routes on admin and the image route on
// the public group.
func (h *Handler) RegisterRoutes(admin, public *echo.Group) {
	g := admin.Group("", auth.RequireRole("admin"))
	g.GET("/logorules", h.List)
	g.GET("/logorules/:id", h.Get)
	g.POST("/logorules", h.Create)
	g.PUT("/logorules/:id", h.Update)
	g.DELETE("/logorules/:id", h.Delete)

	public.GET("/logos/:id/image", h.Image)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperrors.HTTPStatus(err), err.Error())
}

func (h *Handler) List(c echo.Context) error {
	rules, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if rules == nil {
		rules = []*LogoRule{}
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rule, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	rule.Logo = nil
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) Create(c echo.Context) error {
	var rule LogoRule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), &rule); err != nil {
		return httpError(err)
	}
	rule.Logo = nil
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var rule LogoRule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule.ID = id
	if err := h.svc.Update(c.Request().Context(), &rule); err != nil {
		return httpError(err)
	}
	rule.Logo = nil
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Image(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	data, contentType, err := h.svc.Image(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, contentType, data)
}
