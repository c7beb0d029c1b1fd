package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/product"
)

// Route names, resolved with echo's Reverse when building links.
const (
	routeRoot              = "root:root"
	routeConformance       = "root:conformance"
	routeOpenAPI           = "root:openapi"
	routeDocs              = "root:docs"
	routeListProducts      = "root:list-products"
	routeListOrders        = "root:list-orders"
	routeGetOrder          = "root:get-order"
	routeListOrderStatuses = "root:list-order-statuses"
	routeSetOrderStatus    = "root:set-order-status"
	routeOrderStatusStream = "root:order-status-stream"
	routeListSearchRecords = "root:list-opportunity-search-records"
	routeGetSearchRecord   = "root:get-opportunity-search-record"

	routeGetProduct               = "get-product"
	routeGetConstraints           = "get-constraints"
	routeGetOrderParameters       = "get-order-parameters"
	routeCreateOrder              = "create-order"
	routeSearchOpportunities      = "search-opportunities"
	routeGetOpportunityCollection = "get-opportunity-collection"
)

func productRoute(productID, name string) string {
	return "products:" + productID + ":" + name
}

func productPath(productID string) string {
	return "/products/" + url.PathEscape(productID)
}

func (s *Server) baseURL(c echo.Context) string {
	if s.opts.BaseURL != "" {
		return s.opts.BaseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

func (s *Server) href(c echo.Context, name string, params ...any) string {
	return s.baseURL(c) + s.echo.Reverse(name, params...)
}

func link(href, rel, typ string) model.Link {
	return model.Link{Href: href, Rel: rel, Type: typ}
}

// nextQueryLink points a GET listing at its following page.
func nextQueryLink(href, token string, limit int, typ string) model.Link {
	q := url.Values{}
	q.Set("next", token)
	q.Set("limit", strconv.Itoa(limit))
	return link(href+"?"+q.Encode(), "next", typ)
}

func (s *Server) rootLinks(c echo.Context) []model.Link {
	links := []model.Link{
		link(s.href(c, routeRoot), "self", model.TypeJSON),
		link(s.href(c, routeOpenAPI), "service-description", model.TypeJSON),
		link(s.href(c, routeDocs), "service-docs", model.TypeHTML),
		link(s.href(c, routeConformance), "conformance", model.TypeJSON),
		link(s.href(c, routeListProducts), "products", model.TypeJSON),
		link(s.href(c, routeListOrders), "orders", model.TypeGeoJSON),
	}
	if s.async {
		links = append(links, link(s.href(c, routeListSearchRecords), "opportunity-search-records", model.TypeJSON))
	}
	return links
}

func (s *Server) productLinks(c echo.Context, p *product.Product) []model.Link {
	links := []model.Link{
		link(s.href(c, productRoute(p.ID, routeGetProduct)), "self", model.TypeJSON),
		link(s.href(c, productRoute(p.ID, routeGetConstraints)), "constraints", model.TypeJSON),
		link(s.href(c, productRoute(p.ID, routeGetOrderParameters)), "order-parameters", model.TypeJSON),
	}
	if s.capabilities(p).Search() {
		l := link(s.href(c, productRoute(p.ID, routeSearchOpportunities)), "opportunities", model.TypeJSON)
		l.Method = http.MethodPost
		links = append(links, l)
	}
	order := link(s.href(c, productRoute(p.ID, routeCreateOrder)), "create-order", model.TypeGeoJSON)
	order.Method = http.MethodPost
	return append(links, order)
}

// productDocument renders p with request-time links.
func (s *Server) productDocument(c echo.Context, p *product.Product) model.Product {
	doc := p.Product
	if doc.ConformsTo == nil {
		doc.ConformsTo = []string{}
	}
	if doc.Providers == nil {
		doc.Providers = []model.Provider{}
	}
	doc.Links = s.productLinks(c, p)
	return doc
}

func (s *Server) orderLinks(c echo.Context, orderID string) []model.Link {
	return []model.Link{
		link(s.href(c, routeGetOrder, orderID), "self", model.TypeGeoJSON),
		link(s.href(c, routeListOrderStatuses, orderID), "monitor", model.TypeJSON),
	}
}

// createOrderLink carries the search parameters so the client only has to
// add its order parameters.
func (s *Server) createOrderLink(c echo.Context, p *product.Product, params model.OrderSearchParameters) model.Link {
	l := link(s.href(c, productRoute(p.ID, routeCreateOrder)), "create-order", model.TypeGeoJSON)
	l.Method = http.MethodPost
	l.Body = params
	return l
}

func (s *Server) searchRecordLinks(c echo.Context, rec model.OpportunitySearchRecord) []model.Link {
	links := []model.Link{link(s.href(c, routeGetSearchRecord, rec.ID), "self", model.TypeJSON)}
	if rec.Status.StatusCode != model.SearchCompleted || rec.CollectionID == "" {
		return links
	}
	p, err := s.registry.Get(rec.ProductID)
	if err != nil || !s.capabilities(p).Async {
		return links
	}
	return append(links, link(s.href(c, productRoute(p.ID, routeGetOpportunityCollection), rec.CollectionID), "opportunities", model.TypeGeoJSON))
}

// collectionLinks completes the links of a stored collection. Links the
// backend already supplied are kept.
func (s *Server) collectionLinks(c echo.Context, p *product.Product, coll model.OpportunityCollection) []model.Link {
	links := append([]model.Link{}, coll.Links...)
	if coll.ID != "" && !model.HasLink(links, "self") {
		links = append(links, link(s.href(c, productRoute(p.ID, routeGetOpportunityCollection), coll.ID), "self", model.TypeGeoJSON))
	}
	if !model.HasLink(links, "create-order") {
		var params model.OrderSearchParameters
		if coll.Request != nil {
			params = coll.Request.SearchParameters()
		}
		links = append(links, s.createOrderLink(c, p, params))
	}
	if coll.SearchRecordID != "" && s.async && !model.HasLink(links, "search-record") {
		links = append(links, link(s.href(c, routeGetSearchRecord, coll.SearchRecordID), "search-record", model.TypeJSON))
	}
	return links
}
