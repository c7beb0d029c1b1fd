package search

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GoDispatcher runs each search on its own goroutine in this process.
type GoDispatcher struct {
	process func(ctx context.Context, id string) error
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewGoDispatcher(process func(ctx context.Context, id string) error, timeout time.Duration) *GoDispatcher {
	return &GoDispatcher{process: process, timeout: timeout}
}

func (d *GoDispatcher) Dispatch(ctx context.Context, recordID string) error {
	// The search outlives the request that accepted it.
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := context.WithTimeout(bg, d.timeout)
		defer cancel()
		if err := d.process(runCtx, recordID); err != nil {
			slog.ErrorContext(runCtx, "async search failed", "search_record_id", recordID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched search returned.
func (d *GoDispatcher) Wait() { d.wg.Wait() }
