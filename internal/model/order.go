package model

import (
	"encoding/json"
	"time"
)

// OrderStatusCode is the lifecycle of an order. It is deliberately a separate
// type from OpportunitySearchStatusCode even where values overlap.
type OrderStatusCode string

const (
	OrderReceived  OrderStatusCode = "received"
	OrderAccepted  OrderStatusCode = "accepted"
	OrderRejected  OrderStatusCode = "rejected"
	OrderCompleted OrderStatusCode = "completed"
	OrderCanceled  OrderStatusCode = "canceled"
)

func (c OrderStatusCode) Valid() bool {
	switch c {
	case OrderReceived, OrderAccepted, OrderRejected, OrderCompleted, OrderCanceled:
		return true
	}
	return false
}

// OrderStatus is one entry of an order's append-only status history.
type OrderStatus struct {
	Timestamp  time.Time       `json:"timestamp"`
	StatusCode OrderStatusCode `json:"status_code"`
	ReasonCode string          `json:"reason_code,omitempty"`
	ReasonText string          `json:"reason_text,omitempty"`
	Links      []Link          `json:"links,omitempty"`
}

// OrderStatusPayload is what a backend or operator submits to append a status.
type OrderStatusPayload struct {
	StatusCode OrderStatusCode `json:"status_code"`
	ReasonCode string          `json:"reason_code,omitempty"`
	ReasonText string          `json:"reason_text,omitempty"`
}

func (p OrderStatusPayload) Validate() error {
	var fe fieldErrors
	if !p.StatusCode.Valid() {
		fe.add("status_code must be one of received, accepted, rejected, completed, canceled", "status_code")
	}
	return fe.err()
}

type OrderSearchParameters struct {
	Datetime DatetimeInterval `json:"datetime"`
	Geometry json.RawMessage  `json:"geometry"`
	Filter   json.RawMessage  `json:"filter,omitempty"`
}

type OrderProperties struct {
	ProductID             string                `json:"product_id"`
	Created               time.Time             `json:"created"`
	Status                OrderStatus           `json:"status"`
	SearchParameters      OrderSearchParameters `json:"search_parameters"`
	OpportunityProperties map[string]any        `json:"opportunity_properties"`
	OrderParameters       json.RawMessage       `json:"order_parameters"`
}

// Order is a GeoJSON Feature. Only Properties.Status changes after creation,
// and only as a view of the newest status history entry.
type Order struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties OrderProperties `json:"properties"`
	Links      []Link          `json:"links"`
}

// OrderPayload creates an order either from raw search parameters or from a
// chosen opportunity, whose properties are snapshotted onto the order.
type OrderPayload struct {
	Datetime              DatetimeInterval `json:"datetime"`
	Geometry              json.RawMessage  `json:"geometry"`
	Filter                json.RawMessage  `json:"filter,omitempty"`
	OrderParameters       json.RawMessage  `json:"order_parameters"`
	OpportunityProperties map[string]any   `json:"opportunity_properties,omitempty"`
}

func (p OrderPayload) Validate() error {
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
	if len(p.OrderParameters) == 0 || string(p.OrderParameters) == "null" {
		fe.add("order_parameters is required", "order_parameters")
	}
	return fe.err()
}

type OrderCollection struct {
	Type     string  `json:"type"`
	Features []Order `json:"features"`
	Links    []Link  `json:"links"`
}

type OrderStatuses struct {
	Statuses []OrderStatus `json:"statuses"`
	Links    []Link        `json:"links"`
}
