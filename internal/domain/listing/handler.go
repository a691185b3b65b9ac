package listing

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/codes", h.GetAll)
	api.GET("/codes/search", h.Search)
	api.GET("/categories", h.GetAllCategories)
}

// institutionCode prefers the query parameter over the token's claim.
func institutionCode(c echo.Context) string {
	if code := c.QueryParam("institution"); code != "" {
		return code
	}
	return auth.InstitutionFromContext(c.Request().Context())
}

func (h *Handler) GetAll(c echo.Context) error {
	codes, err := h.svc.GetAll(c.Request().Context(), institutionCode(c))
	if err != nil {
		return echo.NewHTTPError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, codes)
}

func (h *Handler) Search(c echo.Context) error {
	codes, err := h.svc.GetCodesBySynonyms(c.Request().Context(), c.QueryParam("q"), institutionCode(c))
	if err != nil {
		return echo.NewHTTPError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, codes)
}

func (h *Handler) GetAllCategories(c echo.Context) error {
	cats, err := h.svc.GetAllCategories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperrors.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cats)
}
