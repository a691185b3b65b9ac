package linkrule_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosisview/dvserver/internal/domain/linkrule"
)

func TestHandler_CreateReturnsCriteria(t *testing.T) {
	f := newFixture()
	f.link("https://publisher.example/a")
	h := linkrule.NewHandler(f.svc)
	e := echo.New()

	body := `{"link":"https://publisher.example/","transform":"https://proxy/","criteriaType":"INSTITUTION","criteria":"UNIV_X"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "INSTITUTION", got["criteriaType"])
	assert.Equal(t, "UNIV_X", got["criteria"])
	assert.EqualValues(t, 1, got["mappingCount"])
}

func TestHandler_CreateUnsupportedCriteria(t *testing.T) {
	f := newFixture()
	h := linkrule.NewHandler(f.svc)
	e := echo.New()

	body := `{"link":"https://publisher.example/","transform":"x","criteriaType":"REGION","criteria":"north"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.Create(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_DeleteUnknownIsBadRequest(t *testing.T) {
	f := newFixture()
	h := linkrule.NewHandler(f.svc)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	he, ok := h.Delete(c).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_ListEmpty(t *testing.T) {
	f := newFixture()
	h := linkrule.NewHandler(f.svc)
	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.JSONEq(t, `[]`, rec.Body.String())
}
