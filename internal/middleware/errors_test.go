package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"constraints", apperr.Constraints("off_nadir must be below 45"), http.StatusUnprocessableEntity, `{"detail":"off_nadir must be below 45"}`},
		{"structured", &apperr.ConstraintsError{Detail: []model.FieldError{{Loc: []string{"body", "geometry"}, Msg: "geometry is required"}}}, http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","geometry"],"msg":"geometry is required"}]}`},
		{"not found", apperr.NotFound("order", "o-1"), http.StatusNotFound, ""},
		{"bad request", echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer"), http.StatusBadRequest, `{"detail":"limit must be a non-negative integer"}`},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, `{"detail":"Internal Server Error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestErrorHandlerSkipsCommittedResponses(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	assert.NoError(t, c.String(http.StatusOK, "done"))

	ErrorHandler(errors.New("late failure"), c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestRequestLoggerPassesErrorsToHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.Use(RequestLogger())
	e.GET("/boom", func(echo.Context) error { return apperr.Constraints("bad") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"detail":"bad"}`, rec.Body.String())
}
