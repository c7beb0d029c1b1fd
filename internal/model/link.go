package model

// Media types used on links and responses.
const (
	TypeJSON    = "application/json"
	TypeGeoJSON = "application/geo+json"
	TypeHTML    = "text/html"
)

// Link is a hypermedia affordance attached to a response.
type Link struct {
	Href    string            `json:"href"`
	Rel     string            `json:"rel"`
	Type    string            `json:"type,omitempty"`
	Title   string            `json:"title,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// FindLink returns the first link with the given rel.
func FindLink(links []Link, rel string) (Link, bool) {
	for _, l := range links {
		if l.Rel == rel {
			return l, true
		}
	}
	return Link{}, false
}

// HasLink reports whether links carries rel.
func HasLink(links []Link, rel string) bool {
	_, ok := FindLink(links, rel)
	return ok
}
