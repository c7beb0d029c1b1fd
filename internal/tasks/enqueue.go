package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// NewOpportunitySearchTask builds the task for a search record. The record id
// doubles as the task id so a record is queued at most once.
func NewOpportunitySearchTask(searchRecordID string) (*asynq.Task, error) {
	b, err := json.Marshal(OpportunitySearchPayload{SearchRecordID: searchRecordID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOpportunitySearch, b,
		asynq.Queue(QueueSearches),
		asynq.TaskID(searchRecordID),
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
	), nil
}

// Dispatch enqueues the search; it satisfies search.Dispatcher.
func (q *Queue) Dispatch(ctx context.Context, searchRecordID string) error {
	task, err := NewOpportunitySearchTask(searchRecordID)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskOpportunitySearch, err)
	}
	return nil
}
