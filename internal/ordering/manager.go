// Package ordering creates orders and records their status history on top of
// a store.OrderStore.
package ordering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/store"
)

// Notifier is told about every appended status.
type Notifier interface {
	PublishOrderStatus(orderID string, status model.OrderStatus)
}

type Manager struct {
	store    store.OrderStore
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(s store.OrderStore, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CreateOrder builds an order with an initial received status and stores both
// together. The payload has already been validated against the product's
// order parameters. It satisfies product.CreateOrderFunc.
func (m *Manager) CreateOrder(ctx context.Context, p *product.Product, payload model.OrderPayload) (model.Order, error) {
	now := m.now().UTC()
	first := model.OrderStatus{Timestamp: now, StatusCode: model.OrderReceived}

	opportunity := payload.OpportunityProperties
	if opportunity == nil {
		opportunity = map[string]any{
			"datetime":   payload.Datetime.String(),
			"product_id": p.ID,
		}
	}

	order := model.Order{
		Type:     "Feature",
		ID:       m.newID(),
		Geometry: payload.Geometry,
		Properties: model.OrderProperties{
			ProductID: p.ID,
			Created:   now,
			Status:    first,
			SearchParameters: model.OrderSearchParameters{
				Datetime: payload.Datetime,
				Geometry: payload.Geometry,
				Filter:   payload.Filter,
			},
			OpportunityProperties: opportunity,
			OrderParameters:       payload.OrderParameters,
		},
	}
	if err := m.store.CreateOrder(ctx, order, first); err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	slog.InfoContext(ctx, "order created", "order_id", order.ID, "product_id", p.ID)
	m.publish(order.ID, first)
	return order, nil
}

func (m *Manager) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return m.store.GetOrder(ctx, id)
}

func (m *Manager) GetOrders(ctx context.Context, next string, limit int) ([]model.Order, string, error) {
	return m.store.ListOrders(ctx, next, limit)
}

// GetOrderStatuses lists the history newest first.
func (m *Manager) GetOrderStatuses(ctx context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error) {
	return m.store.ListOrderStatuses(ctx, orderID, next, limit)
}

// SetOrderStatus appends a status stamped with the current time. Earlier
// entries are never touched.
func (m *Manager) SetOrderStatus(ctx context.Context, orderID string, payload model.OrderStatusPayload) (model.OrderStatus, error) {
	if err := payload.Validate(); err != nil {
		return model.OrderStatus{}, err
	}
	st, err := m.store.AppendOrderStatus(ctx, orderID, model.OrderStatus{
		Timestamp:  m.now().UTC(),
		StatusCode: payload.StatusCode,
		ReasonCode: payload.ReasonCode,
		ReasonText: payload.ReasonText,
	})
	if err != nil {
		return model.OrderStatus{}, fmt.Errorf("set order status: %w", err)
	}
	slog.InfoContext(ctx, "order status appended", "order_id", orderID, "status", st.StatusCode)
	m.publish(orderID, st)
	return st, nil
}

func (m *Manager) publish(orderID string, st model.OrderStatus) {
	if m.notifier != nil {
		m.notifier.PublishOrderStatus(orderID, st)
	}
}
