package model

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/sudo-init-do/tasking/internal/pagination"
)

// OpportunityPayload is the body of an opportunity search. The same body, with
// next set, is echoed in pagination links so the client can reissue it.
type OpportunityPayload struct {
	Datetime DatetimeInterval `json:"datetime"`
	Geometry json.RawMessage  `json:"geometry"`
	Filter   json.RawMessage  `json:"filter,omitempty"`
	Next     string           `json:"next,omitempty"`
	Limit    *int             `json:"limit,omitempty"`
}

// PageLimit is the requested limit with the default applied and clamped.
func (p OpportunityPayload) PageLimit() int {
	if p.Limit == nil {
		return pagination.DefaultLimit
	}
	return pagination.ClampLimit(*p.Limit)
}

// Validate checks the shape of the payload. Product-specific constraints are
// checked by the backend.
func (p OpportunityPayload) Validate() error {
	var fe fieldErrors
	if p.Datetime.IsZero() {
		fe.add("datetime is required", "datetime")
	}
	if err := CheckGeometry(p.Geometry); err != nil {
		fe.add(err.Error(), "geometry")
	}
	if err := checkFilter(p.Filter); err != nil {
		fe.add(err.Error(), "filter")
	}
	if p.Limit != nil && *p.Limit < 0 {
		fe.add("limit must not be negative", "limit")
	}
	return fe.err()
}

// WithNext returns a copy of p resuming at token.
func (p OpportunityPayload) WithNext(token string) OpportunityPayload {
	p.Next = token
	return p
}

// SearchParameters drops the paging fields.
func (p OpportunityPayload) SearchParameters() OrderSearchParameters {
	return OrderSearchParameters{Datetime: p.Datetime, Geometry: p.Geometry, Filter: p.Filter}
}

// OpportunityProperties always carries datetime and product_id; anything else
// the backend reports is kept in Extra and flattened on the wire.
type OpportunityProperties struct {
	Datetime  DatetimeInterval
	ProductID string
	Extra     map[string]any
}

func (p OpportunityProperties) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+2)
	maps.Copy(m, p.Extra)
	m["datetime"] = p.Datetime
	m["product_id"] = p.ProductID
	return json.Marshal(m)
}

func (p *OpportunityProperties) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out OpportunityProperties
	if v, ok := raw["datetime"]; ok {
		if err := json.Unmarshal(v, &out.Datetime); err != nil {
			return err
		}
		delete(raw, "datetime")
	}
	if v, ok := raw["product_id"]; ok {
		if err := json.Unmarshal(v, &out.ProductID); err != nil {
			return err
		}
		delete(raw, "product_id")
	}
	if len(raw) > 0 {
		out.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var x any
			if err := json.Unmarshal(v, &x); err != nil {
				return err
			}
			out.Extra[k] = x
		}
	}
	*p = out
	return nil
}

// Snapshot flattens the properties into the map stored on an order.
func (p OpportunityProperties) Snapshot() map[string]any {
	m := make(map[string]any, len(p.Extra)+2)
	maps.Copy(m, p.Extra)
	m["datetime"] = p.Datetime.String()
	m["product_id"] = p.ProductID
	return m
}

// Opportunity is a candidate tasking slot produced by a search.
type Opportunity struct {
	Type       string                `json:"type"`
	ID         string                `json:"id,omitempty"`
	Geometry   json.RawMessage       `json:"geometry"`
	Properties OpportunityProperties `json:"properties"`
	Links      []Link                `json:"links,omitempty"`
}

// OpportunityCollection is a page of search results, or the stored result of
// an asynchronous search.
type OpportunityCollection struct {
	Type     string        `json:"type"`
	ID       string        `json:"id,omitempty"`
	Features []Opportunity `json:"features"`
	Links    []Link        `json:"links"`

	// Bookkeeping kept by stores, never rendered.
	ProductID      string              `json:"-"`
	SearchRecordID string              `json:"-"`
	Request        *OpportunityPayload `json:"-"`
}

// NewOpportunityCollection wraps features in a FeatureCollection.
func NewOpportunityCollection(features []Opportunity) OpportunityCollection {
	if features == nil {
		features = []Opportunity{}
	}
	return OpportunityCollection{Type: "FeatureCollection", Features: features, Links: []Link{}}
}

// OpportunitySearchStatusCode is the lifecycle of an asynchronous search.
type OpportunitySearchStatusCode string

const (
	SearchReceived   OpportunitySearchStatusCode = "received"
	SearchInProgress OpportunitySearchStatusCode = "in_progress"
	SearchCompleted  OpportunitySearchStatusCode = "completed"
	SearchFailed     OpportunitySearchStatusCode = "failed"
	SearchCanceled   OpportunitySearchStatusCode = "canceled"
)

func (c OpportunitySearchStatusCode) Valid() bool {
	switch c {
	case SearchReceived, SearchInProgress, SearchCompleted, SearchFailed, SearchCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (c OpportunitySearchStatusCode) Terminal() bool {
	return c == SearchCompleted || c == SearchFailed || c == SearchCanceled
}

// CanTransitionTo allows received -> in_progress -> terminal, and received
// straight to a terminal state.
func (c OpportunitySearchStatusCode) CanTransitionTo(next OpportunitySearchStatusCode) bool {
	switch c {
	case SearchReceived:
		return next == SearchInProgress || next.Terminal()
	case SearchInProgress:
		return next.Terminal()
	}
	return false
}

type OpportunitySearchStatus struct {
	Timestamp  time.Time                   `json:"timestamp"`
	StatusCode OpportunitySearchStatusCode `json:"status_code"`
	ReasonCode string                      `json:"reason_code,omitempty"`
	ReasonText string                      `json:"reason_text,omitempty"`
	Links      []Link                      `json:"links,omitempty"`
}

// OpportunitySearchRecord is the durable handle of an asynchronous search.
type OpportunitySearchRecord struct {
	ID                 string                  `json:"id"`
	ProductID          string                  `json:"product_id"`
	OpportunityRequest OpportunityPayload      `json:"opportunity_request"`
	Status             OpportunitySearchStatus `json:"status"`
	Links              []Link                  `json:"links"`

	// CollectionID is set once the search completed with a stored collection.
	CollectionID string `json:"-"`
}

type OpportunitySearchRecords struct {
	SearchRecords []OpportunitySearchRecord `json:"search_records"`
	Links         []Link                    `json:"links"`
}
