package tasks

import "time"

// Task types
const (
	TaskOpportunitySearch = "opportunity:search"
)

// Queues and their priorities.
const (
	QueueSearches = "searches"
)

// OpportunitySearchPayload names the search record to execute.
type OpportunitySearchPayload struct {
	SearchRecordID string    `json:"search_record_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}
