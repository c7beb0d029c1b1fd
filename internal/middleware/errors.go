package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/apperr"
)

// ErrorHandler renders handler errors as {"detail": ...}. Constraint
// violations become 422 and missing resources 404; anything unexpected is
// logged and hidden behind a generic 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, echo.Map{"detail": detail})
	}
	if err != nil {
		slog.Debug("writing error response failed", "error", err)
	}
}

func classify(err error) (int, any) {
	var ce *apperr.ConstraintsError
	if errors.As(err, &ce) {
		return http.StatusUnprocessableEntity, ce.Detail
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return http.StatusNotFound, err.Error()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		return he.Code, he.Message
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
