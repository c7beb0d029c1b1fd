package demo

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/pagination"
	"github.com/sudo-init-do/tasking/internal/product"
)

// maxPasses bounds one search so a very long interval stays cheap.
const maxPasses = 1000

var opportunityNamespace = uuid.MustParse("3f1c8a52-6d0e-4c7b-9a3e-2b7f5d1e8c40")

// Generator yields one pass every Every inside the requested interval. The
// same request always produces the same opportunities, ids included.
type Generator struct {
	settings OpportunitySettings
}

func NewGenerator(s OpportunitySettings) *Generator {
	if s.Every <= 0 {
		s.Every = 6 * time.Hour
	}
	if s.Window <= 0 {
		s.Window = 5 * time.Minute
	}
	return &Generator{settings: s}
}

// Search is a product.SearchOpportunitiesFunc.
func (g *Generator) Search(_ context.Context, p *product.Product, payload model.OpportunityPayload, next string, limit int) ([]model.Opportunity, string, error) {
	var allowed []string
	if p.Constraints != nil {
		allowed = p.Constraints.Properties()
	}
	match, err := compileFilter(payload.Filter, allowed)
	if err != nil {
		return nil, "", err
	}

	var kept []model.Opportunity
	for _, o := range g.passes(p.ID, payload) {
		if match(o.Properties.Extra) {
			kept = append(kept, o)
		}
	}
	return pagination.Paginate(kept, func(o model.Opportunity) string { return o.ID }, next, limit)
}

func (g *Generator) passes(productID string, payload model.OpportunityPayload) []model.Opportunity {
	every, window := g.settings.Every, g.settings.Window
	start := payload.Datetime.Start.UTC()
	end := payload.Datetime.End.UTC()

	t := start.Truncate(every)
	if t.Before(start) {
		t = t.Add(every)
	}

	var out []model.Opportunity
	for ; !t.Add(window).After(end) && len(out) < maxPasses; t = t.Add(every) {
		id := uuid.NewSHA1(opportunityNamespace, []byte(productID+"|"+t.Format(time.RFC3339)+"|"+string(payload.Geometry)))
		out = append(out, model.Opportunity{
			Type:     "Feature",
			ID:       id.String(),
			Geometry: payload.Geometry,
			Properties: model.OpportunityProperties{
				Datetime:  model.DatetimeInterval{Start: t, End: t.Add(window)},
				ProductID: productID,
				Extra:     map[string]any{"off_nadir": offNadir(id, g.settings.MaxOffNadir)},
			},
		})
	}
	return out
}

// offNadir derives a stable angle from the opportunity id, to one decimal.
func offNadir(id uuid.UUID, maxAngle float64) float64 {
	if maxAngle <= 0 {
		maxAngle = 30
	}
	frac := float64(uint16(id[0])<<8|uint16(id[1])) / math.MaxUint16
	return math.Round(frac*maxAngle*10) / 10
}
