package demo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/ordering"
	"github.com/sudo-init-do/tasking/internal/product"
	"github.com/sudo-init-do/tasking/internal/schema"
	"github.com/sudo-init-do/tasking/internal/search"
	"github.com/sudo-init-do/tasking/internal/store"
)

func dayPayload(t *testing.T, filter string) model.OpportunityPayload {
	t.Helper()
	dt, err := model.ParseDatetimeInterval("2025-06-01T00:00:00Z/2025-06-02T00:00:00Z")
	require.NoError(t, err)
	p := model.OpportunityPayload{Datetime: dt, Geometry: json.RawMessage(`{"type":"Point","coordinates":[13.4,52.5]}`)}
	if filter != "" {
		p.Filter = json.RawMessage(filter)
	}
	return p
}

func testProduct() *product.Product {
	return &product.Product{
		Product:     model.Product{ID: "optical"},
		Constraints: schema.MustNew("c", `{"type":"object","properties":{"off_nadir":{"type":"number"}}}`),
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	require.Len(t, cat.Products, 3)

	first := cat.Products[0]
	assert.Equal(t, "optical-50cm", first.ID)
	assert.Equal(t, SearchBoth, first.Search)
	assert.Equal(t, 6*time.Hour, first.Opportunities.Every)
	assert.Equal(t, 10*time.Minute, first.Opportunities.Window)
	assert.Equal(t, []model.ProviderRole{model.RoleProducer, model.RoleHost}, first.Providers[0].Roles)
	assert.Equal(t, SearchNone, cat.Products[2].Search)
}

func TestParseCatalogDefaults(t *testing.T) {
	cat, err := ParseCatalog([]byte("products:\n  - id: x\n"))
	require.NoError(t, err)
	e := cat.Products[0]
	assert.Equal(t, SearchSync, e.Search)
	assert.Equal(t, 6*time.Hour, e.Opportunities.Every)
	assert.Equal(t, map[string]any{"type": "object"}, e.Constraints)

	_, err = ParseCatalog([]byte("products:\n  - id: x\n    search: sometimes\n"))
	assert.Error(t, err)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - id: file-product\n    search: none\n"), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Products, 1)
	assert.Equal(t, "file-product", cat.Products[0].ID)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGeneratorIsDeterministic(t *testing.T) {
	g := NewGenerator(OpportunitySettings{Every: 6 * time.Hour, Window: 10 * time.Minute, MaxOffNadir: 30})
	p := testProduct()
	ctx := context.Background()

	a, tok, err := g.Search(ctx, p, dayPayload(t, ""), "", 100)
	require.NoError(t, err)
	assert.Empty(t, tok)
	// 00:00, 06:00, 12:00, 18:00; a pass at 24:00 would end after the interval
	require.Len(t, a, 4)

	b, _, err := g.Search(ctx, p, dayPayload(t, ""), "", 100)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("second search differs (-first +second):\n%s", diff)
	}

	for _, o := range a {
		assert.Equal(t, "optical", o.Properties.ProductID)
		assert.Equal(t, 10*time.Minute, o.Properties.Datetime.Duration())
		angle := o.Properties.Extra["off_nadir"].(float64)
		assert.GreaterOrEqual(t, angle, 0.0)
		assert.LessOrEqual(t, angle, 30.0)
	}
}

func TestGeneratorPaging(t *testing.T) {
	g := NewGenerator(OpportunitySettings{Every: time.Hour, Window: time.Minute})
	p := testProduct()
	ctx := context.Background()

	var all []model.Opportunity
	next := ""
	for i := 0; ; i++ {
		require.Less(t, i, 10)
		page, tok, err := g.Search(ctx, p, dayPayload(t, ""), next, 10)
		require.NoError(t, err)
		all = append(all, page...)
		if tok == "" {
			break
		}
		next = tok
	}
	assert.Len(t, all, 24)
}

func TestGeneratorFilter(t *testing.T) {
	g := NewGenerator(OpportunitySettings{Every: time.Hour, Window: time.Minute, MaxOffNadir: 40})
	p := testProduct()
	ctx := context.Background()

	got, _, err := g.Search(ctx, p, dayPayload(t, `{"op":"<=","args":[{"property":"off_nadir"},20]}`), "", 100)
	require.NoError(t, err)
	for _, o := range got {
		assert.LessOrEqual(t, o.Properties.Extra["off_nadir"].(float64), 20.0)
	}

	none, _, err := g.Search(ctx, p, dayPayload(t, `{"op":"and","args":[{"op":">","args":[{"property":"off_nadir"},10]},{"op":"<","args":[{"property":"off_nadir"},10]}]}`), "", 100)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, _, err = g.Search(ctx, p, dayPayload(t, `{"op":"<","args":[{"property":"gsd"},1]}`), "", 100)
	require.True(t, apperr.IsConstraints(err))

	_, _, err = g.Search(ctx, p, dayPayload(t, `{"op":"s_intersects","args":[]}`), "", 100)
	assert.True(t, apperr.IsConstraints(err))
}

func TestBackendRegistry(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	s := store.NewMemoryStore()
	b := Backend{Orders: ordering.NewManager(s), Searches: search.NewEngine(s)}

	reg, err := b.Registry(cat)
	require.NoError(t, err)

	optical, err := reg.Get("optical-50cm")
	require.NoError(t, err)
	assert.Equal(t, product.Capabilities{Sync: true, Async: true}, product.CapabilitiesOf(optical, true))

	sar, err := reg.Get("sar-1m")
	require.NoError(t, err)
	assert.Equal(t, product.Capabilities{Sync: false, Async: true}, product.CapabilitiesOf(sar, true))

	archive, err := reg.Get("archive-request")
	require.NoError(t, err)
	assert.False(t, product.CapabilitiesOf(archive, true).Search())

	err = optical.OrderParameters.Validate(json.RawMessage(`{"priority":"later"}`), "order_parameters")
	assert.True(t, apperr.IsConstraints(err))

	_, err = Backend{Orders: b.Orders}.Registry(cat)
	var ce *apperr.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
