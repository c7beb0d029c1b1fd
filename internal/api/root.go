package api

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
)

func (s *Server) getRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, model.RootResponse{
		ID:          s.opts.ID,
		ConformsTo:  s.opts.Conformances,
		Title:       s.opts.Title,
		Description: s.opts.Description,
		Links:       s.rootLinks(c),
	})
}

func (s *Server) getConformance(c echo.Context) error {
	return c.JSON(http.StatusOK, model.Conformance{ConformsTo: s.opts.Conformances})
}

type openAPIOperation struct {
	OperationID string `json:"operationId"`
}

type openAPIDocument struct {
	OpenAPI string                                 `json:"openapi"`
	Info    map[string]string                      `json:"info"`
	Paths   map[string]map[string]openAPIOperation `json:"paths"`
}

// getOpenAPI describes every named route currently registered.
func (s *Server) getOpenAPI(c echo.Context) error {
	doc := openAPIDocument{
		OpenAPI: "3.1.0",
		Info:    map[string]string{"title": s.opts.Title, "version": "0.1.0"},
		Paths:   map[string]map[string]openAPIOperation{},
	}
	routes := s.echo.Routes()
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	for _, r := range routes {
		if !strings.Contains(r.Name, ":") {
			continue
		}
		path := openAPIPath(r.Path)
		if doc.Paths[path] == nil {
			doc.Paths[path] = map[string]openAPIOperation{}
		}
		doc.Paths[path][strings.ToLower(r.Method)] = openAPIOperation{OperationID: r.Name}
	}
	return c.JSON(http.StatusOK, doc)
}

// openAPIPath turns echo's ":param" segments into "{param}".
func openAPIPath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			segs[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

const docsPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});</script>
</body>
</html>
`

func (s *Server) getDocs(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf(docsPage, html.EscapeString(s.opts.Title), s.href(c, routeOpenAPI)))
}
