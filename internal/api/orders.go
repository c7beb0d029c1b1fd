package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
)

func (s *Server) listOrders(c echo.Context) error {
	next, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	orders, token, err := s.orders.GetOrders(c.Request().Context(), next, limit)
	if err != nil {
		return err
	}

	out := model.OrderCollection{
		Type:     "FeatureCollection",
		Features: make([]model.Order, 0, len(orders)),
		Links:    []model.Link{link(s.href(c, routeListOrders), "self", model.TypeGeoJSON)},
	}
	for _, o := range orders {
		o.Links = s.orderLinks(c, o.ID)
		out.Features = append(out.Features, o)
	}
	if token != "" {
		out.Links = append(out.Links, nextQueryLink(s.href(c, routeListOrders), token, limit, model.TypeGeoJSON))
	}
	return geoJSON(c, http.StatusOK, out)
}

func (s *Server) getOrder(c echo.Context) error {
	order, err := s.orders.GetOrder(c.Request().Context(), c.Param("orderID"))
	if err != nil {
		return err
	}
	order.Links = s.orderLinks(c, order.ID)
	return geoJSON(c, http.StatusOK, order)
}

func (s *Server) listOrderStatuses(c echo.Context) error {
	next, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	orderID := c.Param("orderID")
	statuses, token, err := s.orders.GetOrderStatuses(c.Request().Context(), orderID, next, limit)
	if err != nil {
		return err
	}
	if statuses == nil {
		statuses = []model.OrderStatus{}
	}

	self := s.href(c, routeListOrderStatuses, orderID)
	out := model.OrderStatuses{
		Statuses: statuses,
		Links:    []model.Link{link(self, "self", model.TypeJSON)},
	}
	if token != "" {
		out.Links = append(out.Links, nextQueryLink(self, token, limit, model.TypeJSON))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) setOrderStatus(c echo.Context) error {
	var payload model.OrderStatusPayload
	if err := decodeBody(c, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	status, err := s.orders.SetOrderStatus(c.Request().Context(), c.Param("orderID"), payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, status)
}
