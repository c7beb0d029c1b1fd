package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load order: %w", NotFound("order", "abc"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, `load order: order "abc" not found`, err.Error())
}

func TestIsConstraints(t *testing.T) {
	assert.True(t, IsConstraints(fmt.Errorf("wrap: %w", Constraints("off_nadir %d out of range", 60))))
	assert.False(t, IsConstraints(errors.New("boom")))
	assert.False(t, IsConstraints(NotFound("order", "x")))
}

func TestConfigurationMessage(t *testing.T) {
	err := Configuration("product %q: async search needs both callbacks", "p1")
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "p1")
}
