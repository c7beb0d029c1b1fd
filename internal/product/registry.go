package product

import (
	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/pagination"
)

// Registry holds the products of a deployment in registration order. It is
// filled at startup and sealed before requests are served; after Seal it is
// only read, so it needs no locking.
type Registry struct {
	products []*Product
	byID     map[string]*Product
	sealed   bool
}

// NewRegistry registers products in order.
func NewRegistry(products ...*Product) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Product)}
	for _, p := range products {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers p after checking its wiring.
func (r *Registry) Add(p *Product) error {
	if r.sealed {
		return apperr.Configuration("registry is sealed, cannot add product %q", p.ID)
	}
	if err := p.Check(); err != nil {
		return err
	}
	if _, dup := r.byID[p.ID]; dup {
		return apperr.Configuration("product %q registered twice", p.ID)
	}
	if p.Search == nil {
		p.Search = NoSearch{}
	}
	if p.Type == "" {
		p.Type = "Product"
	}
	r.products = append(r.products, p)
	r.byID[p.ID] = p
	return nil
}

// Seal forbids further registration.
func (r *Registry) Seal() { r.sealed = true }

func (r *Registry) Sealed() bool { return r.sealed }

func (r *Registry) Get(id string) (*Product, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return p, nil
}

// Products returns all products in registration order.
func (r *Registry) Products() []*Product {
	out := make([]*Product, len(r.products))
	copy(out, r.products)
	return out
}

// Page lists products with the usual cursor contract.
func (r *Registry) Page(next string, limit int) ([]*Product, string, error) {
	return pagination.Paginate(r.products, func(p *Product) string { return p.ID }, next, limit)
}

// AnyAsync reports whether some product carries the async callback pair.
func (r *Registry) AnyAsync() bool {
	for _, p := range r.products {
		if _, _, ok := p.AsyncSearchFuncs(); ok {
			return true
		}
	}
	return false
}
