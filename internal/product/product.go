// Package product describes orderable products and the backend callbacks that
// serve them.
package product

import (
	"context"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/schema"
)

// SearchOpportunitiesFunc runs a synchronous search and returns one page.
// The returned token is empty when no further page exists.
type SearchOpportunitiesFunc func(ctx context.Context, p *Product, payload model.OpportunityPayload, next string, limit int) ([]model.Opportunity, string, error)

// SearchOpportunitiesAsyncFunc accepts a search and returns its stored record
// in state received.
type SearchOpportunitiesAsyncFunc func(ctx context.Context, p *Product, payload model.OpportunityPayload) (model.OpportunitySearchRecord, error)

// GetOpportunityCollectionFunc fetches the stored result of a completed async
// search. Unknown ids return an apperr not-found error.
type GetOpportunityCollectionFunc func(ctx context.Context, p *Product, id string) (model.OpportunityCollection, error)

// CreateOrderFunc persists an order built from an already validated payload.
type CreateOrderFunc func(ctx context.Context, p *Product, payload model.OrderPayload) (model.Order, error)

// SearchCapability is one of NoSearch, SyncSearch, AsyncSearch or
// SyncAsyncSearch.
type SearchCapability interface {
	searchCapability()
}

type NoSearch struct{}

type SyncSearch struct {
	Search SearchOpportunitiesFunc
}

type AsyncSearch struct {
	SearchAsync   SearchOpportunitiesAsyncFunc
	GetCollection GetOpportunityCollectionFunc
}

type SyncAsyncSearch struct {
	Search        SearchOpportunitiesFunc
	SearchAsync   SearchOpportunitiesAsyncFunc
	GetCollection GetOpportunityCollectionFunc
}

func (NoSearch) searchCapability()        {}
func (SyncSearch) searchCapability()      {}
func (AsyncSearch) searchCapability()     {}
func (SyncAsyncSearch) searchCapability() {}

// Product pairs the public descriptor with its schemas and callbacks.
// Descriptor links are ignored; they are computed per request.
type Product struct {
	model.Product

	Constraints     *schema.Schema
	OrderParameters *schema.Schema
	Search          SearchCapability
	CreateOrder     CreateOrderFunc
}

// SyncSearchFunc returns the synchronous search callback, if any.
func (p *Product) SyncSearchFunc() (SearchOpportunitiesFunc, bool) {
	switch s := p.Search.(type) {
	case SyncSearch:
		return s.Search, true
	case SyncAsyncSearch:
		return s.Search, true
	}
	return nil, false
}

// AsyncSearchFuncs returns the asynchronous callback pair, if any.
func (p *Product) AsyncSearchFuncs() (SearchOpportunitiesAsyncFunc, GetOpportunityCollectionFunc, bool) {
	switch s := p.Search.(type) {
	case AsyncSearch:
		return s.SearchAsync, s.GetCollection, true
	case SyncAsyncSearch:
		return s.SearchAsync, s.GetCollection, true
	}
	return nil, nil, false
}

// Check validates the product wiring. Every failure is a ConfigurationError.
func (p *Product) Check() error {
	if p.ID == "" {
		return apperr.Configuration("product without id")
	}
	if p.CreateOrder == nil {
		return apperr.Configuration("product %q: create order callback is required", p.ID)
	}
	if p.Constraints == nil || p.OrderParameters == nil {
		return apperr.Configuration("product %q: constraints and order parameters schemas are required", p.ID)
	}
	for _, prov := range p.Providers {
		for _, r := range prov.Roles {
			if !r.Valid() {
				return apperr.Configuration("product %q: provider %q has unknown role %q", p.ID, prov.Name, r)
			}
		}
	}

	switch s := p.Search.(type) {
	case nil, NoSearch:
	case SyncSearch:
		if s.Search == nil {
			return apperr.Configuration("product %q: sync search callback is nil", p.ID)
		}
	case AsyncSearch:
		if s.SearchAsync == nil || s.GetCollection == nil {
			return apperr.Configuration("product %q: async search needs both search and collection callbacks", p.ID)
		}
	case SyncAsyncSearch:
		if s.Search == nil {
			return apperr.Configuration("product %q: sync search callback is nil", p.ID)
		}
		if s.SearchAsync == nil || s.GetCollection == nil {
			return apperr.Configuration("product %q: async search needs both search and collection callbacks", p.ID)
		}
	default:
		return apperr.Configuration("product %q: unknown search capability %T", p.ID, s)
	}
	return nil
}
