// Package demo is a self-contained backend: a YAML product catalog, a
// deterministic opportunity generator and the wiring that turns both into a
// product registry.
package demo

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sudo-init-do/tasking/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Search modes a catalog entry may ask for.
const (
	SearchNone  = "none"
	SearchSync  = "sync"
	SearchAsync = "async"
	SearchBoth  = "both"
)

type Catalog struct {
	Products []ProductEntry `yaml:"products"`
}

type ProductEntry struct {
	ID          string           `yaml:"id"`
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Keywords    []string         `yaml:"keywords"`
	License     string           `yaml:"license"`
	Providers   []model.Provider `yaml:"providers"`
	Search      string           `yaml:"search"`

	Opportunities OpportunitySettings `yaml:"opportunities"`

	Constraints     map[string]any `yaml:"constraints"`
	OrderParameters map[string]any `yaml:"order_parameters"`
}

// OpportunitySettings shape the generated passes.
type OpportunitySettings struct {
	Every       time.Duration `yaml:"every"`
	Window      time.Duration `yaml:"window"`
	MaxOffNadir float64       `yaml:"max_off_nadir"`
}

// DefaultCatalog is the catalog shipped with the binary.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file; an empty path means DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range cat.Products {
		e := &cat.Products[i]
		if e.Search == "" {
			e.Search = SearchSync
		}
		switch e.Search {
		case SearchNone, SearchSync, SearchAsync, SearchBoth:
		default:
			return Catalog{}, fmt.Errorf("product %q: unknown search mode %q", e.ID, e.Search)
		}
		if e.Opportunities.Every <= 0 {
			e.Opportunities.Every = 6 * time.Hour
		}
		if e.Opportunities.Window <= 0 {
			e.Opportunities.Window = 5 * time.Minute
		}
		if e.Constraints == nil {
			e.Constraints = map[string]any{"type": "object"}
		}
		if e.OrderParameters == nil {
			e.OrderParameters = map[string]any{"type": "object"}
		}
	}
	return cat, nil
}
