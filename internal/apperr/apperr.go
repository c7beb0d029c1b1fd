// Package apperr holds the error kinds the HTTP layer knows how to map.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// ConstraintsError reports client input that failed domain validation.
// Detail is rendered verbatim as the response "detail" member, so it may be
// a string or any JSON-encodable structure.
type ConstraintsError struct {
	Detail any
}

func (e *ConstraintsError) Error() string {
	if s, ok := e.Detail.(string); ok {
		return "constraints: " + s
	}
	return fmt.Sprintf("constraints: %v", e.Detail)
}

// Constraints builds a ConstraintsError with a formatted message.
func Constraints(format string, args ...any) error {
	return &ConstraintsError{Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConfigurationError is raised while wiring products and routers. It is fatal
// at startup and never produced while serving requests.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

// Configuration builds a ConfigurationError with a formatted message.
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConstraints reports whether err carries a ConstraintsError.
func IsConstraints(err error) bool {
	var ce *ConstraintsError
	return errors.As(err, &ce)
}
