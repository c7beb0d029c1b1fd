// Package storetest holds the behaviour every store.Store must share. Each
// backend's tests call Run with a constructor that returns an empty store.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
	"github.com/sudo-init-do/tasking/internal/store"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises s against the store contract. newStore is called once per
// subtest and must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"CreateOrderStoresFirstStatus", testCreateOrderStoresFirstStatus},
		{"AppendOrderStatus", testAppendOrderStatus},
		{"ConcurrentAppends", testConcurrentAppends},
		{"StatusPaging", testStatusPaging},
		{"ListOrders", testListOrders},
		{"SearchRecords", testSearchRecords},
		{"Collections", testCollections},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seedOrder(t *testing.T, s store.Store, id string) {
	t.Helper()
	o := model.Order{
		Type:     "Feature",
		ID:       id,
		Geometry: json.RawMessage(`{"type":"Point","coordinates":[0,0]}`),
		Properties: model.OrderProperties{
			ProductID: "p1",
			Created:   t0,
		},
		Links: []model.Link{{Rel: "self", Href: "http://stale/orders/" + id}},
	}
	require.NoError(t, s.CreateOrder(context.Background(), o, model.OrderStatus{Timestamp: t0, StatusCode: model.OrderReceived}))
}

func allStatuses(t *testing.T, s store.Store, orderID string) []model.OrderStatus {
	t.Helper()
	history, next, err := s.ListOrderStatuses(context.Background(), orderID, "", pagination.MaxLimit)
	require.NoError(t, err)
	require.Empty(t, next)
	return history
}

func assertNewestFirst(t *testing.T, history []model.OrderStatus) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i-1].Timestamp.Before(history[i].Timestamp),
			"entry %d (%s) is older than entry %d (%s)", i-1, history[i-1].Timestamp, i, history[i].Timestamp)
	}
}

func testCreateOrderStoresFirstStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedOrder(t, s, "o1")

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o.Links, "links must not be persisted")
	assert.Equal(t, model.OrderReceived, o.Properties.Status.StatusCode)
	assert.Equal(t, "p1", o.Properties.ProductID)

	history, next, err := s.ListOrderStatuses(ctx, "o1", "", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Empty(t, next)

	assert.Error(t, s.CreateOrder(ctx, model.Order{ID: "o1"}, model.OrderStatus{Timestamp: t0, StatusCode: model.OrderReceived}))

	_, err = s.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func testAppendOrderStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedOrder(t, s, "o1")

	codes := []model.OrderStatusCode{model.OrderAccepted, model.OrderCompleted, model.OrderCanceled}
	for i, c := range codes {
		_, err := s.AppendOrderStatus(ctx, "o1", model.OrderStatus{Timestamp: t0.Add(time.Duration(i+1) * time.Minute), StatusCode: c})
		require.NoError(t, err)
	}
	// A clock that went backwards must not reorder history.
	got, err := s.AppendOrderStatus(ctx, "o1", model.OrderStatus{Timestamp: t0, StatusCode: model.OrderRejected})
	require.NoError(t, err)
	assert.True(t, t0.Add(3*time.Minute).Equal(got.Timestamp), "got %s", got.Timestamp)

	history := allStatuses(t, s, "o1")
	require.Len(t, history, len(codes)+1)
	assert.Equal(t, model.OrderRejected, history[0].StatusCode, "newest first")
	assert.Equal(t, model.OrderReceived, history[len(history)-1].StatusCode)
	assertNewestFirst(t, history)

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderRejected, o.Properties.Status.StatusCode)

	_, err = s.AppendOrderStatus(ctx, "missing", model.OrderStatus{Timestamp: t0, StatusCode: model.OrderAccepted})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

// Writers race with timestamps that run backwards relative to start order.
// Whatever interleaving wins, history order and timestamp order must agree
// and the order must show the newest entry.
func testConcurrentAppends(t *testing.T, s store.Store) {
	seedOrder(t, s, "o1")
	const writers = 20

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := model.OrderStatus{
				Timestamp:  t0.Add(time.Duration(writers-i) * time.Minute),
				StatusCode: model.OrderAccepted,
				ReasonText: fmt.Sprint(i),
			}
			_, err := s.AppendOrderStatus(context.Background(), "o1", st)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history := allStatuses(t, s, "o1")
	require.Len(t, history, writers+1)
	assertNewestFirst(t, history)

	reasons := make(map[string]bool, writers)
	for _, h := range history[:writers] {
		reasons[h.ReasonText] = true
	}
	assert.Len(t, reasons, writers, "every append stored exactly once")

	o, err := s.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, history[0].ReasonText, o.Properties.Status.ReasonText, "order shows the newest entry")
}

func testStatusPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedOrder(t, s, "o1")
	seedOrder(t, s, "o2")
	for i := 0; i < 4; i++ {
		_, err := s.AppendOrderStatus(ctx, "o1", model.OrderStatus{Timestamp: t0.Add(time.Hour), StatusCode: model.OrderAccepted, ReasonText: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	var all []model.OrderStatus
	next := ""
	for {
		page, token, err := s.ListOrderStatuses(ctx, "o1", next, 2)
		require.NoError(t, err)
		all = append(all, page...)
		if token == "" {
			break
		}
		next = token
	}
	require.Len(t, all, 5)
	assert.Equal(t, "3", all[0].ReasonText)
	assert.Equal(t, model.OrderReceived, all[4].StatusCode)

	// A token from one order's history is not valid for another's.
	_, token, err := s.ListOrderStatuses(ctx, "o1", "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	_, _, err = s.ListOrderStatuses(ctx, "o2", token, 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, _, err = s.ListOrderStatuses(ctx, "o1", pagination.EncodeToken("4242"), 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, _, err = s.ListOrderStatuses(ctx, "nope", "", 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	empty, token, err := s.ListOrderStatuses(ctx, "o1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Empty(t, token)
}

func testListOrders(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, next, err := s.ListOrders(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Empty(t, next)

	for _, id := range []string{"a", "b", "c"} {
		seedOrder(t, s, id)
	}
	page, next, err := s.ListOrders(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, "b", page[1].ID)
	assert.NotEmpty(t, next)

	page, next, err = s.ListOrders(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)
	assert.Empty(t, next)

	_, _, err = s.ListOrders(ctx, pagination.EncodeToken("zzz"), 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func testSearchRecords(t *testing.T, s store.Store) {
	ctx := context.Background()

	rec := model.OpportunitySearchRecord{
		ID:        "r1",
		ProductID: "p1",
		Status:    model.OpportunitySearchStatus{Timestamp: t0, StatusCode: model.SearchReceived},
		Links:     []model.Link{{Rel: "self", Href: "x"}},
	}
	require.NoError(t, s.PutSearchRecord(ctx, rec))
	require.NoError(t, s.PutSearchRecord(ctx, rec))

	got, err := s.GetSearchRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got.Links)

	list, _, err := s.ListSearchRecords(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1, "re-putting a record must not duplicate it")

	updated, err := s.UpdateSearchRecord(ctx, "r1", func(r *model.OpportunitySearchRecord) error {
		r.Status.StatusCode = model.SearchCompleted
		r.CollectionID = "c1"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", updated.CollectionID)

	_, err = s.UpdateSearchRecord(ctx, "r1", func(*model.OpportunitySearchRecord) error { return errors.New("no") })
	assert.Error(t, err)
	got, err = s.GetSearchRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, got.Status.StatusCode)
	assert.Equal(t, "c1", got.CollectionID)

	_, err = s.GetSearchRecord(ctx, "r2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = s.UpdateSearchRecord(ctx, "r2", func(*model.OpportunitySearchRecord) error { return nil })
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func testCollections(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := model.NewOpportunityCollection([]model.Opportunity{{Type: "Feature", ID: "op1"}})
	c.ID = "c1"
	c.ProductID = "p1"
	c.SearchRecordID = "r1"
	require.NoError(t, s.PutOpportunityCollection(ctx, c))

	got, err := s.GetOpportunityCollection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.SearchRecordID)
	assert.Equal(t, "p1", got.ProductID)
	assert.Len(t, got.Features, 1)

	_, err = s.GetOpportunityCollection(ctx, "c2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
