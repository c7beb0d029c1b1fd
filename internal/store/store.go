// Package store persists orders, their status history, async search records
// and opportunity collections.
package store

import (
	"context"

	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

// OrderStore keeps orders and their append-only status history.
// Links are never persisted; implementations drop them on write.
type OrderStore interface {
	// CreateOrder stores order and its first status so that no reader ever
	// sees the order without a status.
	CreateOrder(ctx context.Context, order model.Order, first model.OrderStatus) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	// ListOrders pages through orders in creation order.
	ListOrders(ctx context.Context, next string, limit int) ([]model.Order, string, error)
	// AppendOrderStatus appends to the history and refreshes the order's
	// current status. A timestamp older than the newest entry is raised to
	// it so history order and timestamp order agree. The stored entry is
	// returned.
	AppendOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (model.OrderStatus, error)
	// ListOrderStatuses pages through the history newest first.
	ListOrderStatuses(ctx context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error)
}

// OpportunityStore keeps async search records and their result collections.
type OpportunityStore interface {
	PutSearchRecord(ctx context.Context, rec model.OpportunitySearchRecord) error
	GetSearchRecord(ctx context.Context, id string) (model.OpportunitySearchRecord, error)
	// UpdateSearchRecord applies fn to the stored record atomically. If fn
	// returns an error nothing is written.
	UpdateSearchRecord(ctx context.Context, id string, fn func(*model.OpportunitySearchRecord) error) (model.OpportunitySearchRecord, error)
	ListSearchRecords(ctx context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error)
	PutOpportunityCollection(ctx context.Context, c model.OpportunityCollection) error
	GetOpportunityCollection(ctx context.Context, id string) (model.OpportunityCollection, error)
}

// Store is a complete backend.
type Store interface {
	OrderStore
	OpportunityStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// trimPage turns a limit+1 sized fetch into a page and the next token.
func trimPage[T any](rows []T, limit int, key func(T) string) ([]T, string) {
	if len(rows) > limit {
		return rows[:limit], pagination.EncodeToken(key(rows[limit]))
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, ""
}

func stripOrderLinks(o model.Order) model.Order {
	o.Links = nil
	o.Properties.Status.Links = nil
	return o
}

func stripRecordLinks(r model.OpportunitySearchRecord) model.OpportunitySearchRecord {
	r.Links = nil
	r.Status.Links = nil
	return r
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MongoStore)(nil)
)
