// Package search runs asynchronous opportunity searches: it stores a record
// when a search is accepted, hands the record to a Dispatcher, and later
// executes the search and stores its result collection.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/store"
)

// Reason codes stamped on failed searches.
const (
	ReasonInvalidRequest = "invalid_request"
	ReasonSearchFailed   = "search_failed"
	ReasonUnknownProduct = "unknown_product"
)

// Dispatcher schedules Engine.Process for a record.
type Dispatcher interface {
	Dispatch(ctx context.Context, recordID string) error
}

type target struct {
	product *product.Product
	run     product.SearchOpportunitiesFunc
}

type Engine struct {
	store      store.OpportunityStore
	dispatcher Dispatcher
	targets    map[string]target
	now        func() time.Time
	newID      func() string
}

type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s store.OpportunityStore, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		targets: make(map[string]target),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// UseDispatcher sets where accepted searches are sent. Without one, records
// stay received until something calls Process.
func (e *Engine) UseDispatcher(d Dispatcher) { e.dispatcher = d }

// Attach makes p searchable asynchronously, executing run in the background.
// With keepSync the same function also serves synchronous searches.
// Call it before the product is registered.
func (e *Engine) Attach(p *product.Product, run product.SearchOpportunitiesFunc, keepSync bool) {
	e.targets[p.ID] = target{product: p, run: run}
	if keepSync {
		p.Search = product.SyncAsyncSearch{Search: run, SearchAsync: e.SearchAsync, GetCollection: e.GetOpportunityCollection}
		return
	}
	p.Search = product.AsyncSearch{SearchAsync: e.SearchAsync, GetCollection: e.GetOpportunityCollection}
}

// SearchAsync stores a received record and dispatches it.
func (e *Engine) SearchAsync(ctx context.Context, p *product.Product, payload model.OpportunityPayload) (model.OpportunitySearchRecord, error) {
	rec := model.OpportunitySearchRecord{
		ID:                 e.newID(),
		ProductID:          p.ID,
		OpportunityRequest: payload,
		Status: model.OpportunitySearchStatus{
			Timestamp:  e.now().UTC(),
			StatusCode: model.SearchReceived,
		},
	}
	if err := e.store.PutSearchRecord(ctx, rec); err != nil {
		return model.OpportunitySearchRecord{}, fmt.Errorf("store search record: %w", err)
	}
	if e.dispatcher != nil {
		if err := e.dispatcher.Dispatch(ctx, rec.ID); err != nil {
			if _, ferr := e.Advance(ctx, rec.ID, model.SearchFailed, ReasonSearchFailed, "search could not be scheduled"); ferr != nil {
				slog.ErrorContext(ctx, "failed to mark undispatched search", "search_record_id", rec.ID, "error", ferr)
			}
			return model.OpportunitySearchRecord{}, fmt.Errorf("dispatch search %s: %w", rec.ID, err)
		}
	}
	slog.InfoContext(ctx, "opportunity search accepted", "search_record_id", rec.ID, "product_id", p.ID)
	return rec, nil
}

// GetOpportunityCollection returns the stored result of a search on p.
func (e *Engine) GetOpportunityCollection(ctx context.Context, p *product.Product, id string) (model.OpportunityCollection, error) {
	c, err := e.store.GetOpportunityCollection(ctx, id)
	if err != nil {
		return model.OpportunityCollection{}, err
	}
	if c.ProductID != p.ID {
		return model.OpportunityCollection{}, apperr.NotFound("opportunity collection", id)
	}
	return c, nil
}

func (e *Engine) GetSearchRecords(ctx context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error) {
	return e.store.ListSearchRecords(ctx, next, limit)
}

func (e *Engine) GetSearchRecord(ctx context.Context, id string) (model.OpportunitySearchRecord, error) {
	return e.store.GetSearchRecord(ctx, id)
}

// Advance moves a record to status. Terminal records do not move.
func (e *Engine) Advance(ctx context.Context, id string, status model.OpportunitySearchStatusCode, reasonCode, reasonText string) (model.OpportunitySearchRecord, error) {
	return e.store.UpdateSearchRecord(ctx, id, func(r *model.OpportunitySearchRecord) error {
		if !r.Status.StatusCode.CanTransitionTo(status) {
			return apperr.Constraints("search %s cannot move from %s to %s", id, r.Status.StatusCode, status)
		}
		r.Status = model.OpportunitySearchStatus{
			Timestamp:  e.now().UTC(),
			StatusCode: status,
			ReasonCode: reasonCode,
			ReasonText: reasonText,
		}
		return nil
	})
}

// maxCollectionPages bounds how many pages collect follows before it gives
// up on a backend that keeps returning tokens.
const maxCollectionPages = 1000

var errRunawayPaging = errors.New("search backend did not stop paging")

// collect runs the search page by page until the backend returns no token,
// so the stored collection holds every opportunity and not only the first
// page.
func collect(ctx context.Context, t target, payload model.OpportunityPayload) ([]model.Opportunity, error) {
	payload.Next = ""
	var (
		all  []model.Opportunity
		next string
		seen = make(map[string]bool)
	)
	for range maxCollectionPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, token, err := t.run(ctx, t.product, payload, next, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if token == "" {
			return all, nil
		}
		if seen[token] {
			return nil, fmt.Errorf("%w: token %q repeated", errRunawayPaging, token)
		}
		seen[token] = true
		next = token
	}
	return nil, fmt.Errorf("%w after %d pages", errRunawayPaging, maxCollectionPages)
}

// Process executes a dispatched search. Redelivery of a finished record is a
// no-op. Search failures are recorded on the record rather than returned, so
// queues do not retry them; only storage errors are returned.
func (e *Engine) Process(ctx context.Context, id string) error {
	rec, err := e.store.GetSearchRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.StatusCode.Terminal() {
		slog.DebugContext(ctx, "search already finished", "search_record_id", id, "status", rec.Status.StatusCode)
		return nil
	}
	if rec.Status.StatusCode == model.SearchReceived {
		if rec, err = e.Advance(ctx, id, model.SearchInProgress, "", ""); err != nil {
			return err
		}
	}

	t, ok := e.targets[rec.ProductID]
	if !ok {
		_, err := e.Advance(ctx, id, model.SearchFailed, ReasonUnknownProduct, "product "+rec.ProductID+" cannot be searched")
		return err
	}

	features, err := collect(ctx, t, rec.OpportunityRequest)
	if err != nil {
		reason, text := ReasonSearchFailed, "search failed"
		var ce *apperr.ConstraintsError
		if errors.As(err, &ce) {
			reason, text = ReasonInvalidRequest, ce.Error()
		} else {
			slog.ErrorContext(ctx, "opportunity search failed", "search_record_id", id, "error", err)
		}
		_, aerr := e.Advance(ctx, id, model.SearchFailed, reason, text)
		return aerr
	}

	c := model.NewOpportunityCollection(features)
	c.ID = e.newID()
	c.ProductID = rec.ProductID
	c.SearchRecordID = rec.ID
	req := rec.OpportunityRequest
	c.Request = &req
	if err := e.store.PutOpportunityCollection(ctx, c); err != nil {
		return fmt.Errorf("store opportunity collection: %w", err)
	}

	_, err = e.store.UpdateSearchRecord(ctx, id, func(r *model.OpportunitySearchRecord) error {
		if !r.Status.StatusCode.CanTransitionTo(model.SearchCompleted) {
			return apperr.Constraints("search %s cannot complete from %s", id, r.Status.StatusCode)
		}
		r.Status = model.OpportunitySearchStatus{Timestamp: e.now().UTC(), StatusCode: model.SearchCompleted}
		r.CollectionID = c.ID
		return nil
	})
	if apperr.IsConstraints(err) {
		// Canceled while running; the collection is left unreferenced.
		slog.InfoContext(ctx, "search finished after cancellation", "search_record_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "opportunity search completed", "search_record_id", id, "opportunities", len(features))
	return nil
}
