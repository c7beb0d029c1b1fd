package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

// decodeBody binds a JSON request body into v with echo's binder. Any JSON
// media type is accepted, and a missing Content-Type is read as JSON. Syntax
// errors are 400; values of the wrong type are reported like any other
// validation failure.
func decodeBody(c echo.Context, v any) error {
	req := c.Request()
	if req.ContentLength == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is required")
	}
	if isJSONMediaType(req.Header.Get(echo.HeaderContentType)) {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	err := c.Bind(v)
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return err
	}
	if he.Code == http.StatusUnsupportedMediaType {
		return he
	}
	cause := he.Internal
	if cause == nil {
		return he
	}

	var ce *apperr.ConstraintsError
	if errors.As(cause, &ce) {
		return ce
	}
	var te *json.UnmarshalTypeError
	if errors.As(cause, &te) {
		loc := []string{"body"}
		if te.Field != "" {
			loc = append(loc, strings.Split(te.Field, ".")...)
		}
		return &apperr.ConstraintsError{Detail: []model.FieldError{{Loc: loc, Msg: "must be " + te.Type.String()}}}
	}
	return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON").SetInternal(cause)
}

// isJSONMediaType reports whether ct names JSON or a JSON-based type such as
// application/geo+json. An empty ct counts as JSON.
func isJSONMediaType(ct string) bool {
	base, _, _ := strings.Cut(ct, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	return base == "" || base == echo.MIMEApplicationJSON || strings.HasSuffix(base, "+json")
}

// pageParams reads the next and limit query parameters.
func pageParams(c echo.Context) (string, int, error) {
	limit := pagination.DefaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return "", 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = pagination.ClampLimit(n)
	}
	return c.QueryParam("next"), limit, nil
}

func geoJSON(c echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, model.TypeGeoJSON, b)
}
