package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

const point = `{"type":"Point","coordinates":[-105.1,40.2]}`

func TestParseDatetimeInterval(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"utc", "2025-01-01T00:00:00Z/2025-01-02T00:00:00Z", false},
		{"offsets", "2025-01-01T00:00:00+02:00/2025-01-01T00:00:00+01:00", false},
		{"instant", "2025-01-01T00:00:00Z/2025-01-01T00:00:00Z", false},
		{"end before start", "2025-01-02T00:00:00Z/2025-01-01T00:00:00Z", true},
		{"no offset", "2025-01-01T00:00:00/2025-01-02T00:00:00", true},
		{"single instant", "2025-01-01T00:00:00Z", true},
		{"open end", "2025-01-01T00:00:00Z/", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatetimeInterval(tt.in)
			if tt.wantErr {
				assert.True(t, apperr.IsConstraints(err), "ParseDatetimeInterval(%q) error = %v, want constraints error", tt.in, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDatetimeIntervalJSON(t *testing.T) {
	var p OpportunityPayload
	body := `{"datetime":"2025-01-01T00:00:00Z/2025-01-02T12:00:00Z","geometry":` + point + `}`
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, 36*time.Hour, p.Datetime.Duration())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestOpportunityPayloadLimit(t *testing.T) {
	zero, big := 0, 500
	assert.Equal(t, pagination.DefaultLimit, OpportunityPayload{}.PageLimit())
	assert.Equal(t, 0, OpportunityPayload{Limit: &zero}.PageLimit())
	assert.Equal(t, pagination.MaxLimit, OpportunityPayload{Limit: &big}.PageLimit())
}

func TestOpportunityPayloadValidate(t *testing.T) {
	dt, err := ParseDatetimeInterval("2025-01-01T00:00:00Z/2025-01-02T00:00:00Z")
	require.NoError(t, err)
	neg := -1

	ok := OpportunityPayload{Datetime: dt, Geometry: json.RawMessage(point)}
	assert.NoError(t, ok.Validate())

	bad := OpportunityPayload{Geometry: json.RawMessage(`{"type":"Circle"}`), Filter: json.RawMessage(`[1]`), Limit: &neg}
	err = bad.Validate()
	var ce *apperr.ConstraintsError
	require.ErrorAs(t, err, &ce)
	detail, ok2 := ce.Detail.([]FieldError)
	require.True(t, ok2)
	assert.Len(t, detail, 4)
	assert.Equal(t, []string{"body", "datetime"}, detail[0].Loc)
}

func TestOpportunityPropertiesFlatten(t *testing.T) {
	dt, err := ParseDatetimeInterval("2025-01-01T00:00:00Z/2025-01-01T01:00:00Z")
	require.NoError(t, err)
	props := OpportunityProperties{Datetime: dt, ProductID: "p1", Extra: map[string]any{"off_nadir": 12.5}}

	b, err := json.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"datetime":"2025-01-01T00:00:00Z/2025-01-01T01:00:00Z","product_id":"p1","off_nadir":12.5}`, string(b))

	var back OpportunityProperties
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "p1", back.ProductID)
	assert.Equal(t, 12.5, back.Extra["off_nadir"])
	assert.NotContains(t, back.Extra, "datetime")
}

func TestSearchStatusTransitions(t *testing.T) {
	assert.True(t, SearchReceived.CanTransitionTo(SearchInProgress))
	assert.True(t, SearchReceived.CanTransitionTo(SearchCanceled))
	assert.True(t, SearchInProgress.CanTransitionTo(SearchCompleted))
	assert.False(t, SearchInProgress.CanTransitionTo(SearchReceived))
	assert.False(t, SearchCompleted.CanTransitionTo(SearchFailed))
	assert.False(t, SearchFailed.CanTransitionTo(SearchInProgress))
}

func TestOrderStatusPayloadValidate(t *testing.T) {
	assert.NoError(t, OrderStatusPayload{StatusCode: OrderAccepted}.Validate())
	assert.True(t, apperr.IsConstraints(OrderStatusPayload{StatusCode: "in_progress"}.Validate()))
}

func TestCheckGeometry(t *testing.T) {
	assert.NoError(t, CheckGeometry(json.RawMessage(point)))
	assert.NoError(t, CheckGeometry(json.RawMessage(`{"type":"GeometryCollection","geometries":[`+point+`]}`)))
	assert.Error(t, CheckGeometry(nil))
	assert.Error(t, CheckGeometry(json.RawMessage(`{"type":"Point"}`)))
	assert.Error(t, CheckGeometry(json.RawMessage(`"Point"`)))
}
