package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/product"
)

func (s *Server) listProducts(c echo.Context) error {
	next, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	page, token, err := s.registry.Page(next, limit)
	if err != nil {
		return err
	}

	out := model.ProductsCollection{
		Type:     "ProductCollection",
		Products: make([]model.Product, 0, len(page)),
		Links:    []model.Link{link(s.href(c, routeListProducts), "self", model.TypeJSON)},
	}
	for _, p := range page {
		out.Products = append(out.Products, s.productDocument(c, p))
	}
	if token != "" {
		out.Links = append(out.Links, nextQueryLink(s.href(c, routeListProducts), token, limit, model.TypeJSON))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getProduct(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.productDocument(c, p))
	}
}

func (s *Server) getConstraints(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, p.Constraints.Document())
	}
}

func (s *Server) getOrderParameters(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, p.OrderParameters.Document())
	}
}

// createOrder validates the payload and its order parameters before handing
// it to the product's backend.
func (s *Server) createOrder(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload model.OrderPayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		if err := payload.Validate(); err != nil {
			return err
		}
		if err := p.OrderParameters.Validate(payload.OrderParameters, "order_parameters"); err != nil {
			return err
		}

		order, err := p.CreateOrder(c.Request().Context(), p, payload)
		if err != nil {
			return err
		}
		order.Links = s.orderLinks(c, order.ID)
		c.Response().Header().Set(echo.HeaderLocation, order.Links[0].Href)
		return geoJSON(c, http.StatusCreated, order)
	}
}

// searchOpportunities answers inline or with a search record, following
// product.Decide.
func (s *Server) searchOpportunities(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload model.OpportunityPayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		if err := payload.Validate(); err != nil {
			return err
		}
		pref, err := product.ParsePreference(c.Request().Header.Get("Prefer"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		d := product.Decide(s.capabilities(p), pref)
		if d.PreferenceApplied != product.PreferNone {
			c.Response().Header().Set("Preference-Applied", string(d.PreferenceApplied))
		}
		if d.Mode == product.ModeAsync {
			return s.searchAsync(c, p, payload)
		}
		return s.searchSync(c, p, payload)
	}
}

func (s *Server) searchSync(c echo.Context, p *product.Product, payload model.OpportunityPayload) error {
	run, ok := p.SyncSearchFunc()
	if !ok {
		return fmt.Errorf("product %q: no synchronous search", p.ID)
	}
	limit := payload.PageLimit()
	features, token, err := run(c.Request().Context(), p, payload, payload.Next, limit)
	if err != nil {
		return err
	}
	if limit == 0 {
		features, token = nil, ""
	}

	coll := model.NewOpportunityCollection(features)
	coll.Links = append(coll.Links, s.createOrderLink(c, p, payload.SearchParameters()))
	if token != "" {
		next := link(s.href(c, productRoute(p.ID, routeSearchOpportunities)), "next", model.TypeGeoJSON)
		next.Method = http.MethodPost
		next.Body = payload.WithNext(token)
		coll.Links = append(coll.Links, next)
	}
	return geoJSON(c, http.StatusOK, coll)
}

func (s *Server) searchAsync(c echo.Context, p *product.Product, payload model.OpportunityPayload) error {
	start, _, ok := p.AsyncSearchFuncs()
	if !ok {
		return fmt.Errorf("product %q: no asynchronous search", p.ID)
	}
	rec, err := start(c.Request().Context(), p, payload)
	if err != nil {
		return err
	}
	rec.Links = s.searchRecordLinks(c, rec)
	c.Response().Header().Set(echo.HeaderLocation, rec.Links[0].Href)
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) getOpportunityCollection(p *product.Product) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, get, ok := p.AsyncSearchFuncs()
		if !ok {
			return echo.ErrNotFound
		}
		coll, err := get(c.Request().Context(), p, c.Param("collectionID"))
		if err != nil {
			return err
		}
		if coll.Type == "" {
			coll.Type = "FeatureCollection"
		}
		if coll.Features == nil {
			coll.Features = []model.Opportunity{}
		}
		coll.Links = s.collectionLinks(c, p, coll)
		return geoJSON(c, http.StatusOK, coll)
	}
}
