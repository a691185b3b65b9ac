package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/institutions"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Limit: DefaultLimit, Offset: 0}},
		{"?limit=50&offset=10", Params{Limit: 50, Offset: 10}},
		{"?limit=500", Params{Limit: MaxLimit, Offset: 0}},
		{"?limit=-1&offset=-5", Params{Limit: DefaultLimit, Offset: 0}},
		{"?limit=abc", Params{Limit: DefaultLimit, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, paramsFor(tt.query))
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, 2, 0)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 5, resp.Total)

	resp = NewResponse([]string{"e"}, 5, 2, 4)
	assert.False(t, resp.HasMore)
}

func TestParams_HasNext(t *testing.T) {
	assert.True(t, Params{Limit: 10, Offset: 0}.HasNext(11))
	assert.False(t, Params{Limit: 10, Offset: 0}.HasNext(10))
	assert.False(t, Params{Limit: 10, Offset: 20}.HasNext(5))
}
