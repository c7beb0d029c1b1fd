package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.OrderStatusCode
}

func (n *recordingNotifier) PublishOrderStatus(_ string, st model.OrderStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, st.StatusCode)
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func payload(t *testing.T) model.OrderPayload {
	t.Helper()
	dt, err := model.ParseDatetimeInterval("2025-05-01T00:00:00Z/2025-05-02T00:00:00Z")
	require.NoError(t, err)
	return model.OrderPayload{
		Datetime:        dt,
		Geometry:        json.RawMessage(`{"type":"Point","coordinates":[10,20]}`),
		OrderParameters: json.RawMessage(`{"s3_path":"s3://b/k"}`),
	}
}

func TestCreateOrder(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{}
	m := NewManager(store.NewMemoryStore(), WithClock(clock.now), WithNotifier(n))
	p := &product.Product{Product: model.Product{ID: "p1"}}

	order, err := m.CreateOrder(context.Background(), p, payload(t))
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "Feature", order.Type)
	assert.Equal(t, "p1", order.Properties.ProductID)
	assert.Equal(t, model.OrderReceived, order.Properties.Status.StatusCode)
	assert.Equal(t, "p1", order.Properties.OpportunityProperties["product_id"])
	assert.Equal(t, []model.OrderStatusCode{model.OrderReceived}, n.events)

	history, _, err := m.GetOrderStatuses(context.Background(), order.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreateOrderKeepsOpportunitySnapshot(t *testing.T) {
	m := NewManager(store.NewMemoryStore())
	p := &product.Product{Product: model.Product{ID: "p1"}}
	in := payload(t)
	in.OpportunityProperties = map[string]any{"off_nadir": 22.0}

	order, err := m.CreateOrder(context.Background(), p, in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"off_nadir": 22.0}, order.Properties.OpportunityProperties)
}

func TestSetOrderStatusAppends(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(store.NewMemoryStore(), WithClock(clock.now))
	ctx := context.Background()
	order, err := m.CreateOrder(ctx, &product.Product{Product: model.Product{ID: "p1"}}, payload(t))
	require.NoError(t, err)

	const n = 4
	for i := 0; i < n; i++ {
		_, err := m.SetOrderStatus(ctx, order.ID, model.OrderStatusPayload{StatusCode: model.OrderAccepted, ReasonCode: "step"})
		require.NoError(t, err)
	}

	history, _, err := m.GetOrderStatuses(ctx, order.ID, "", 100)
	require.NoError(t, err)
	require.Len(t, history, n+1)
	// newest first, so each entry is at least as late as the next one
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i-1].Timestamp.Before(history[i].Timestamp))
	}

	got, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderAccepted, got.Properties.Status.StatusCode)
}

func TestSetOrderStatusErrors(t *testing.T) {
	m := NewManager(store.NewMemoryStore())
	ctx := context.Background()

	_, err := m.SetOrderStatus(ctx, "missing", model.OrderStatusPayload{StatusCode: model.OrderAccepted})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = m.SetOrderStatus(ctx, "missing", model.OrderStatusPayload{StatusCode: "shipped"})
	assert.True(t, apperr.IsConstraints(err))
}
