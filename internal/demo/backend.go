package demo

import (
	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/ordering"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/schema"
	"github.com/sudo-init-do/tasking/internal/search"
)

// Backend wires catalog products to the order manager and, for products
// searched in the background, to the search engine.
type Backend struct {
	Orders   *ordering.Manager
	Searches *search.Engine
}

// Registry builds a product registry from cat.
func (b Backend) Registry(cat Catalog) (*product.Registry, error) {
	reg, err := product.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, e := range cat.Products {
		p, err := b.Product(e)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Product builds one catalog entry.
func (b Backend) Product(e ProductEntry) (*product.Product, error) {
	if b.Orders == nil {
		return nil, apperr.Configuration("demo backend needs an order manager")
	}
	constraints, err := schema.FromValue(e.ID+"-constraints", e.Constraints)
	if err != nil {
		return nil, apperr.Configuration("product %q: %v", e.ID, err)
	}
	params, err := schema.FromValue(e.ID+"-order-parameters", e.OrderParameters)
	if err != nil {
		return nil, apperr.Configuration("product %q: %v", e.ID, err)
	}

	p := &product.Product{
		Product: model.Product{
			Type:        "Product",
			ConformsTo:  conformsTo(e.Search),
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Keywords:    e.Keywords,
			License:     e.License,
			Providers:   e.Providers,
		},
		Constraints:     constraints,
		OrderParameters: params,
		CreateOrder:     b.Orders.CreateOrder,
	}

	gen := NewGenerator(e.Opportunities)
	switch e.Search {
	case SearchSync:
		p.Search = product.SyncSearch{Search: gen.Search}
	case SearchAsync, SearchBoth:
		if b.Searches == nil {
			return nil, apperr.Configuration("product %q: async search needs a search engine", e.ID)
		}
		b.Searches.Attach(p, gen.Search, e.Search == SearchBoth)
	default:
		p.Search = product.NoSearch{}
	}
	return p, nil
}

func conformsTo(mode string) []string {
	out := []string{model.ConformanceCore}
	switch mode {
	case SearchSync:
		out = append(out, model.ConformanceOpportunities)
	case SearchAsync:
		out = append(out, model.ConformanceAsyncOpportunities)
	case SearchBoth:
		out = append(out, model.ConformanceOpportunities, model.ConformanceAsyncOpportunities)
	}
	return out
}
