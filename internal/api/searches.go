package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
)

func (s *Server) listSearchRecords(c echo.Context) error {
	next, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	recs, token, err := s.records.GetSearchRecords(c.Request().Context(), next, limit)
	if err != nil {
		return err
	}

	out := model.OpportunitySearchRecords{
		SearchRecords: make([]model.OpportunitySearchRecord, 0, len(recs)),
		Links:         []model.Link{link(s.href(c, routeListSearchRecords), "self", model.TypeJSON)},
	}
	for _, r := range recs {
		r.Links = s.searchRecordLinks(c, r)
		out.SearchRecords = append(out.SearchRecords, r)
	}
	if token != "" {
		out.Links = append(out.Links, nextQueryLink(s.href(c, routeListSearchRecords), token, limit, model.TypeJSON))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSearchRecord(c echo.Context) error {
	rec, err := s.records.GetSearchRecord(c.Request().Context(), c.Param("searchRecordID"))
	if err != nil {
		return err
	}
	rec.Links = s.searchRecordLinks(c, rec)
	return c.JSON(http.StatusOK, rec)
}
