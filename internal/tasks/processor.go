package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ProcessFunc executes one search record.
type ProcessFunc func(ctx context.Context, searchRecordID string) error

// Queue sends searches through Redis to an in-process asynq server.
type Queue struct {
	client *asynq.Client
	server *asynq.Server
}

// Start connects to Redis at addr and starts consuming searches with process.
func Start(addr string, concurrency int, process ProcessFunc) (*Queue, error) {
	opts := asynq.RedisClientOpt{Addr: addr}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOpportunitySearch, handleOpportunitySearch(process))

	server := asynq.NewServer(opts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueSearches: 10,
		},
	})
	if err := server.Start(mux); err != nil {
		return nil, fmt.Errorf("start asynq server: %w", err)
	}

	slog.Info("asynq initialized", "addr", addr, "concurrency", concurrency)
	return &Queue{client: asynq.NewClient(opts), server: server}, nil
}

// Close releases the client and stops the server, waiting for running
// searches.
func (q *Queue) Close() {
	if q.client != nil {
		_ = q.client.Close()
	}
	if q.server != nil {
		q.server.Shutdown()
	}
}

// handleOpportunitySearch returns the asynq handler for search tasks. A
// payload that cannot be decoded is not retried.
func handleOpportunitySearch(process ProcessFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p OpportunitySearchPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil || p.SearchRecordID == "" {
			return fmt.Errorf("bad %s payload: %w", TaskOpportunitySearch, asynq.SkipRetry)
		}
		slog.InfoContext(ctx, "running opportunity search",
			"search_record_id", p.SearchRecordID, "queued_for", time.Since(p.EnqueuedAt).Round(time.Millisecond))
		if err := process(ctx, p.SearchRecordID); err != nil {
			slog.ErrorContext(ctx, "opportunity search task failed", "search_record_id", p.SearchRecordID, "error", err)
			return err
		}
		return nil
	}
}
