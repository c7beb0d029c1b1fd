package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	orders   map[string]model.Order
	orderIDs []string
	statuses map[string][]model.OrderStatus

	records     map[string]model.OpportunitySearchRecord
	recordIDs   []string
	collections map[string]model.OpportunityCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]model.Order),
		statuses:    make(map[string][]model.OrderStatus),
		records:     make(map[string]model.OpportunitySearchRecord),
		collections: make(map[string]model.OpportunityCollection),
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, order model.Order, first model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %q already exists", order.ID)
	}
	first.Links = nil
	order = stripOrderLinks(order)
	order.Properties.Status = first
	s.orders[order.ID] = order
	s.orderIDs = append(s.orderIDs, order.ID)
	s.statuses[order.ID] = []model.OrderStatus{first}
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, apperr.NotFound("order", id)
	}
	return o, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, next string, limit int) ([]model.Order, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, token, err := pagination.Paginate(s.orderIDs, func(id string) string { return id }, next, limit)
	if err != nil {
		return nil, "", err
	}
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id])
	}
	return out, token, nil
}

func (s *MemoryStore) AppendOrderStatus(_ context.Context, orderID string, status model.OrderStatus) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return model.OrderStatus{}, apperr.NotFound("order", orderID)
	}
	history := s.statuses[orderID]
	if last := history[len(history)-1]; status.Timestamp.Before(last.Timestamp) {
		status.Timestamp = last.Timestamp
	}
	status.Links = nil
	s.statuses[orderID] = append(history, status)
	o.Properties.Status = status
	s.orders[orderID] = o
	return status, nil
}

type indexedStatus struct {
	seq    int
	status model.OrderStatus
}

func (s *MemoryStore) ListOrderStatuses(_ context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.statuses[orderID]
	if !ok {
		return nil, "", apperr.NotFound("order", orderID)
	}
	newestFirst := make([]indexedStatus, len(history))
	for i, st := range history {
		newestFirst[len(history)-1-i] = indexedStatus{seq: i, status: st}
	}
	page, token, err := pagination.Paginate(newestFirst, func(is indexedStatus) string { return strconv.Itoa(is.seq) }, next, limit)
	if err != nil {
		return nil, "", err
	}
	out := make([]model.OrderStatus, len(page))
	for i, is := range page {
		out[i] = is.status
	}
	return out, token, nil
}

func (s *MemoryStore) PutSearchRecord(_ context.Context, rec model.OpportunitySearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.recordIDs = append(s.recordIDs, rec.ID)
	}
	s.records[rec.ID] = stripRecordLinks(rec)
	return nil
}

func (s *MemoryStore) GetSearchRecord(_ context.Context, id string) (model.OpportunitySearchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.OpportunitySearchRecord{}, apperr.NotFound("opportunity search record", id)
	}
	return rec, nil
}

func (s *MemoryStore) UpdateSearchRecord(_ context.Context, id string, fn func(*model.OpportunitySearchRecord) error) (model.OpportunitySearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return model.OpportunitySearchRecord{}, apperr.NotFound("opportunity search record", id)
	}
	if err := fn(&rec); err != nil {
		return model.OpportunitySearchRecord{}, err
	}
	rec = stripRecordLinks(rec)
	s.records[id] = rec
	return rec, nil
}

func (s *MemoryStore) ListSearchRecords(_ context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, token, err := pagination.Paginate(s.recordIDs, func(id string) string { return id }, next, limit)
	if err != nil {
		return nil, "", err
	}
	out := make([]model.OpportunitySearchRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	return out, token, nil
}

func (s *MemoryStore) PutOpportunityCollection(_ context.Context, c model.OpportunityCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Links = nil
	c.Features = slices.Clone(c.Features)
	s.collections[c.ID] = c
	return nil
}

func (s *MemoryStore) GetOpportunityCollection(_ context.Context, id string) (model.OpportunityCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[id]
	if !ok {
		return model.OpportunityCollection{}, apperr.NotFound("opportunity collection", id)
	}
	c.Features = slices.Clone(c.Features)
	return c, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
