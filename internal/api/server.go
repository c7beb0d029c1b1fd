// Package api serves the tasking HTTP surface on echo.
package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gocloud.dev/server/health"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/messaging"
	mware "github.com/sudo-init-do/tasking/internal/middleware"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/product"
)

// OrderBackend reads orders and appends to their status history.
type OrderBackend interface {
	GetOrders(ctx context.Context, next string, limit int) ([]model.Order, string, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderStatuses(ctx context.Context, orderID, next string, limit int) ([]model.OrderStatus, string, error)
	SetOrderStatus(ctx context.Context, orderID string, payload model.OrderStatusPayload) (model.OrderStatus, error)
}

// SearchRecordBackend lists asynchronous opportunity searches.
type SearchRecordBackend interface {
	GetSearchRecords(ctx context.Context, next string, limit int) ([]model.OpportunitySearchRecord, string, error)
	GetSearchRecord(ctx context.Context, id string) (model.OpportunitySearchRecord, error)
}

type Options struct {
	ID          string
	Title       string
	Description string

	// Conformances advertised at /conformance. When empty they are derived
	// from the registry and from whether SearchRecords is set.
	Conformances []string

	// BaseURL prefixes generated links; empty derives it from the request.
	BaseURL string

	// SearchRecords is required when async opportunities are advertised.
	SearchRecords SearchRecordBackend

	// Hub, when set, serves the order status websocket feed.
	Hub *messaging.Hub

	// HealthChecks back /healthz/readiness.
	HealthChecks []health.Checker
}

// Server owns the echo instance and the sealed product registry.
type Server struct {
	echo     *echo.Echo
	registry *product.Registry
	orders   OrderBackend
	records  SearchRecordBackend
	opts     Options
	async    bool
}

// New builds the router. The registry is sealed; misconfiguration is
// reported as an apperr.ConfigurationError.
func New(registry *product.Registry, orders OrderBackend, opts Options) (*Server, error) {
	if registry == nil || orders == nil {
		return nil, apperr.Configuration("a product registry and an order backend are required")
	}
	if opts.ID == "" {
		opts.ID = "tasking-api"
	}
	if opts.Title == "" {
		opts.Title = "Tasking API"
	}
	if len(opts.Conformances) == 0 {
		opts.Conformances = defaultConformances(registry, opts.SearchRecords != nil)
	}
	if !slices.Contains(opts.Conformances, model.ConformanceCore) {
		return nil, apperr.Configuration("conformance %s must be advertised", model.ConformanceCore)
	}
	async := slices.Contains(opts.Conformances, model.ConformanceAsyncOpportunities)
	if async && opts.SearchRecords == nil {
		return nil, apperr.Configuration("async opportunities advertised without a search record backend")
	}

	registry.Seal()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = mware.ErrorHandler
	e.Use(middleware.RequestID())
	e.Use(mware.RequestLogger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		registry: registry,
		orders:   orders,
		records:  opts.SearchRecords,
		opts:     opts,
		async:    async,
	}
	s.routes()
	return s, nil
}

func defaultConformances(registry *product.Registry, haveRecords bool) []string {
	out := []string{model.ConformanceCore}
	async := haveRecords && registry.AnyAsync()
	for _, p := range registry.Products() {
		if product.CapabilitiesOf(p, async).Search() {
			out = append(out, model.ConformanceOpportunities)
			break
		}
	}
	if async {
		out = append(out, model.ConformanceAsyncOpportunities)
	}
	return out
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.echo.ServeHTTP(w, r) }

// Async reports whether async opportunity search is advertised.
func (s *Server) Async() bool { return s.async }

func (s *Server) capabilities(p *product.Product) product.Capabilities {
	return product.CapabilitiesOf(p, s.async)
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/", s.getRoot).Name = routeRoot
	e.GET("/conformance", s.getConformance).Name = routeConformance
	e.GET("/openapi.json", s.getOpenAPI).Name = routeOpenAPI
	e.GET("/docs", s.getDocs).Name = routeDocs

	e.GET("/products", s.listProducts).Name = routeListProducts
	for _, p := range s.registry.Products() {
		s.productRoutes(p)
	}

	e.GET("/orders", s.listOrders).Name = routeListOrders
	e.GET("/orders/:orderID", s.getOrder).Name = routeGetOrder
	e.GET("/orders/:orderID/statuses", s.listOrderStatuses).Name = routeListOrderStatuses
	e.POST("/orders/:orderID/statuses", s.setOrderStatus).Name = routeSetOrderStatus
	if s.opts.Hub != nil {
		e.GET("/orders/:orderID/statuses/stream", s.opts.Hub.OrderStatusStream(func(ctx context.Context, id string) error {
			_, err := s.orders.GetOrder(ctx, id)
			return err
		})).Name = routeOrderStatusStream
	}

	if s.async {
		e.GET("/searches/opportunities", s.listSearchRecords).Name = routeListSearchRecords
		e.GET("/searches/opportunities/:searchRecordID", s.getSearchRecord).Name = routeGetSearchRecord
	}

	hh := &health.Handler{}
	for _, c := range s.opts.HealthChecks {
		hh.Add(c)
	}
	e.GET("/healthz/liveness", echo.WrapHandler(http.HandlerFunc(health.HandleLive)))
	e.GET("/healthz/readiness", echo.WrapHandler(hh))
}

// productRoutes registers the static routes of one product. Search routes
// exist only when the product can serve them.
func (s *Server) productRoutes(p *product.Product) {
	base := productPath(p.ID)
	e := s.echo

	e.GET(base, s.getProduct(p)).Name = productRoute(p.ID, routeGetProduct)
	e.GET(base+"/constraints", s.getConstraints(p)).Name = productRoute(p.ID, routeGetConstraints)
	e.GET(base+"/order-parameters", s.getOrderParameters(p)).Name = productRoute(p.ID, routeGetOrderParameters)
	e.POST(base+"/orders", s.createOrder(p)).Name = productRoute(p.ID, routeCreateOrder)

	caps := s.capabilities(p)
	if caps.Search() {
		e.POST(base+"/opportunities", s.searchOpportunities(p)).Name = productRoute(p.ID, routeSearchOpportunities)
	}
	if caps.Async {
		e.GET(base+"/opportunities/:collectionID", s.getOpportunityCollection(p)).Name = productRoute(p.ID, routeGetOpportunityCollection)
	}
}
