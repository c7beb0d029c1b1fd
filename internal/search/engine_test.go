package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/store"
)

type recordingDispatcher struct {
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id string) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func searchPayload(t *testing.T) model.OpportunityPayload {
	t.Helper()
	dt, err := model.ParseDatetimeInterval("2025-06-01T00:00:00Z/2025-06-02T00:00:00Z")
	require.NoError(t, err)
	return model.OpportunityPayload{Datetime: dt, Geometry: json.RawMessage(`{"type":"Point","coordinates":[1,2]}`)}
}

func twoOpportunities(_ context.Context, p *product.Product, payload model.OpportunityPayload, _ string, _ int) ([]model.Opportunity, string, error) {
	out := make([]model.Opportunity, 2)
	for i := range out {
		out[i] = model.Opportunity{
			Type:       "Feature",
			Geometry:   payload.Geometry,
			Properties: model.OpportunityProperties{Datetime: payload.Datetime, ProductID: p.ID},
		}
	}
	return out, "", nil
}

func newEngine(t *testing.T, run product.SearchOpportunitiesFunc) (*Engine, *product.Product, *recordingDispatcher) {
	t.Helper()
	e := NewEngine(store.NewMemoryStore())
	d := &recordingDispatcher{}
	e.UseDispatcher(d)
	p := &product.Product{Product: model.Product{ID: "p1"}}
	e.Attach(p, run, false)
	return e, p, d
}

func TestAttach(t *testing.T) {
	e := NewEngine(store.NewMemoryStore())
	p := &product.Product{Product: model.Product{ID: "p1"}}

	e.Attach(p, twoOpportunities, true)
	_, ok := p.SyncSearchFunc()
	assert.True(t, ok)
	_, _, ok = p.AsyncSearchFuncs()
	assert.True(t, ok)

	e.Attach(p, twoOpportunities, false)
	_, ok = p.SyncSearchFunc()
	assert.False(t, ok)
}

func TestSearchAsyncThenProcess(t *testing.T) {
	e, p, d := newEngine(t, twoOpportunities)
	ctx := context.Background()

	rec, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.NoError(t, err)
	assert.Equal(t, model.SearchReceived, rec.Status.StatusCode)
	assert.Equal(t, []string{rec.ID}, d.ids)

	got, err := e.GetSearchRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchReceived, got.Status.StatusCode)

	require.NoError(t, e.Process(ctx, rec.ID))

	got, err = e.GetSearchRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, got.Status.StatusCode)
	require.NotEmpty(t, got.CollectionID)

	c, err := e.GetOpportunityCollection(ctx, p, got.CollectionID)
	require.NoError(t, err)
	assert.Len(t, c.Features, 2)
	assert.Equal(t, rec.ID, c.SearchRecordID)
	require.NotNil(t, c.Request)

	// redelivery leaves the record alone
	require.NoError(t, e.Process(ctx, rec.ID))
	again, err := e.GetSearchRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got.CollectionID, again.CollectionID)

	other := &product.Product{Product: model.Product{ID: "p2"}}
	_, err = e.GetOpportunityCollection(ctx, other, got.CollectionID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

// pagedBackend serves n opportunities and never returns more than pageCap
// per call, the way upstream catalogues cap their pages.
func pagedBackend(n, pageCap int) product.SearchOpportunitiesFunc {
	all := make([]model.Opportunity, n)
	for i := range all {
		all[i] = model.Opportunity{Type: "Feature", ID: fmt.Sprintf("op-%03d", i)}
	}
	return func(_ context.Context, _ *product.Product, _ model.OpportunityPayload, next string, limit int) ([]model.Opportunity, string, error) {
		return pagination.Paginate(all, func(o model.Opportunity) string { return o.ID }, next, min(limit, pageCap))
	}
}

func TestProcessStoresEveryPage(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		pageCap int
	}{
		{"more than the default limit", 25, pagination.DefaultLimit},
		{"more than the max limit", 250, pagination.MaxLimit},
		{"single page", 3, pagination.MaxLimit},
		{"empty", 0, pagination.MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, p, _ := newEngine(t, pagedBackend(tt.total, tt.pageCap))
			ctx := context.Background()
			rec, err := e.SearchAsync(ctx, p, searchPayload(t))
			require.NoError(t, err)
			require.NoError(t, e.Process(ctx, rec.ID))

			got, err := e.GetSearchRecord(ctx, rec.ID)
			require.NoError(t, err)
			require.Equal(t, model.SearchCompleted, got.Status.StatusCode)

			c, err := e.GetOpportunityCollection(ctx, p, got.CollectionID)
			require.NoError(t, err)
			require.Len(t, c.Features, tt.total)
			ids := make(map[string]bool, tt.total)
			for _, f := range c.Features {
				ids[f.ID] = true
			}
			assert.Len(t, ids, tt.total, "every opportunity stored once")
		})
	}
}

func TestProcessFailsOnEndlessPaging(t *testing.T) {
	e, p, _ := newEngine(t, func(context.Context, *product.Product, model.OpportunityPayload, string, int) ([]model.Opportunity, string, error) {
		return []model.Opportunity{{Type: "Feature"}}, "same", nil
	})
	ctx := context.Background()
	rec, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.NoError(t, err)
	require.NoError(t, e.Process(ctx, rec.ID))

	got, err := e.GetSearchRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchFailed, got.Status.StatusCode)
	assert.Equal(t, ReasonSearchFailed, got.Status.ReasonCode)
	assert.Empty(t, got.CollectionID)
}

func TestProcessRecordsFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"constraints", apperr.Constraints("off_nadir out of range"), ReasonInvalidRequest},
		{"backend", errors.New("upstream timeout"), ReasonSearchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, p, _ := newEngine(t, func(context.Context, *product.Product, model.OpportunityPayload, string, int) ([]model.Opportunity, string, error) {
				return nil, "", tt.err
			})
			ctx := context.Background()
			rec, err := e.SearchAsync(ctx, p, searchPayload(t))
			require.NoError(t, err)

			require.NoError(t, e.Process(ctx, rec.ID))
			got, err := e.GetSearchRecord(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, model.SearchFailed, got.Status.StatusCode)
			assert.Equal(t, tt.reason, got.Status.ReasonCode)
			assert.NotContains(t, got.Status.ReasonText, "upstream")
		})
	}
}

func TestProcessAfterCancel(t *testing.T) {
	e, p, _ := newEngine(t, twoOpportunities)
	ctx := context.Background()
	rec, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.NoError(t, err)

	_, err = e.Advance(ctx, rec.ID, model.SearchCanceled, "operator", "")
	require.NoError(t, err)
	require.NoError(t, e.Process(ctx, rec.ID))

	got, err := e.GetSearchRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCanceled, got.Status.StatusCode)
	assert.Empty(t, got.CollectionID)
}

func TestAdvanceRejectsInvalidTransitions(t *testing.T) {
	e, p, _ := newEngine(t, twoOpportunities)
	ctx := context.Background()
	rec, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.NoError(t, err)

	_, err = e.Advance(ctx, rec.ID, model.SearchFailed, "", "")
	require.NoError(t, err)
	_, err = e.Advance(ctx, rec.ID, model.SearchInProgress, "", "")
	assert.True(t, apperr.IsConstraints(err))

	_, err = e.Advance(ctx, "missing", model.SearchCanceled, "", "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSearchAsyncDispatchFailure(t *testing.T) {
	e, p, d := newEngine(t, twoOpportunities)
	d.err = errors.New("redis down")
	ctx := context.Background()

	_, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.Error(t, err)

	recs, _, err := e.GetSearchRecords(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SearchFailed, recs[0].Status.StatusCode)
}

func TestGoDispatcher(t *testing.T) {
	e := NewEngine(store.NewMemoryStore())
	d := NewGoDispatcher(e.Process, 5*time.Second)
	e.UseDispatcher(d)
	p := &product.Product{Product: model.Product{ID: "p1"}}
	e.Attach(p, twoOpportunities, true)

	ctx, cancel := context.WithCancel(context.Background())
	rec, err := e.SearchAsync(ctx, p, searchPayload(t))
	require.NoError(t, err)
	cancel()
	d.Wait()

	got, err := e.GetSearchRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, got.Status.StatusCode)
}
