package coding

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

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	write := admin.Group("", auth.RequireRole("admin"))
	write.GET("/codes/:id", h.GetCode)
	write.POST("/codes", h.CreateCode)
	write.PUT("/codes/:id", h.UpdateCode)
	write.DELETE("/codes/:id", h.DeleteCode)
	write.POST("/codes/:id/links", h.AddLink)
	write.PUT("/codes/:id/links/sync", h.SyncExternalLink)
	write.GET("/links/:id", h.GetLink)
	write.PUT("/links/:id", h.UpdateLink)
	write.DELETE("/links/:id", h.DeleteLink)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperrors.HTTPStatus(err), err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Codes --

func (h *Handler) GetCode(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	code, err := h.svc.GetCode(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) CreateCode(c echo.Context) error {
	var code Code
	if err := c.Bind(&code); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCode(c.Request().Context(), &code); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, code)
}

func (h *Handler) UpdateCode(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var code Code
	if err := c.Bind(&code); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	code.ID = id
	if err := h.svc.UpdateCode(c.Request().Context(), &code); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) DeleteCode(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCode(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Links --

func (h *Handler) GetLink(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLink(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) AddLink(c echo.Context) error {
	codeID, err := parseID(c)
	if err != nil {
		return err
	}
	var l Link
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.ID = uuid.Nil
	if err := h.svc.AddLink(c.Request().Context(), codeID, &l); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) UpdateLink(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var l Link
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.ID = id
	if err := h.svc.UpdateLink(c.Request().Context(), &l); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLink(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLink(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SyncExternalLink upserts a link keyed by its external id.
func (h *Handler) SyncExternalLink(c echo.Context) error {
	codeID, err := parseID(c)
	if err != nil {
		return err
	}
	var in LinkImport
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.ID = uuid.Nil
	created, err := h.svc.SyncExternalLink(c.Request().Context(), codeID, &in)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.JSON(http.StatusCreated, in.Link)
	}
	return c.JSON(http.StatusOK, in.Link)
}
