package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
)

const orderParams = `{
  "type": "object",
  "properties": {
    "s3_path": {"type": "string"},
    "priority": {"type": "integer", "minimum": 1, "maximum": 5}
  },
  "required": ["s3_path"]
}`

func TestValidate(t *testing.T) {
	s := MustNew("order-parameters", orderParams)

	tests := []struct {
		name    string
		in      string
		wantLoc []string
	}{
		{"valid", `{"s3_path":"s3://bucket/key"}`, nil},
		{"valid with priority", `{"s3_path":"s3://bucket/key","priority":3}`, nil},
		{"missing required", `{}`, []string{"body", "order_parameters"}},
		{"out of range", `{"s3_path":"x","priority":9}`, []string{"body", "order_parameters", "priority"}},
		{"not json", `{`, []string{"body", "order_parameters"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(json.RawMessage(tt.in), "order_parameters")
			if tt.wantLoc == nil {
				assert.NoError(t, err)
				return
			}
			var ce *apperr.ConstraintsError
			require.ErrorAs(t, err, &ce)
			detail, ok := ce.Detail.([]model.FieldError)
			require.True(t, ok)
			require.NotEmpty(t, detail)
			assert.Equal(t, tt.wantLoc, detail[0].Loc)
		})
	}
}

func TestDocumentAndProperties(t *testing.T) {
	s := MustNew("order-parameters", orderParams)
	assert.Equal(t, []string{"priority", "s3_path"}, s.Properties())

	b, err := json.Marshal(map[string]any{"schema": s})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"s3_path"`)
}

func TestNewRejectsBrokenSchema(t *testing.T) {
	_, err := New("broken", []byte(`{"type": 12}`))
	assert.Error(t, err)
	_, err = New("broken", []byte(`not json`))
	assert.Error(t, err)
}

func TestFromValue(t *testing.T) {
	s, err := FromValue("constraints", map[string]any{
		"type":       "object",
		"properties": map[string]any{"off_nadir": map[string]any{"type": "number", "maximum": 45}},
	})
	require.NoError(t, err)
	assert.NoError(t, s.Validate(json.RawMessage(`{"off_nadir": 30}`)))
	assert.Error(t, s.Validate(json.RawMessage(`{"off_nadir": 50}`)))
}
