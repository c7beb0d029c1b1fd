package model

// Conformance class URIs.
const (
	ConformanceCore               = "https://stapi.example.com/v0.1.0/core"
	ConformanceOpportunities      = "https://stapi.example.com/v0.1.0/opportunities"
	ConformanceAsyncOpportunities = "https://stapi.example.com/v0.1.0/async-opportunities"
)

type ProviderRole string

const (
	RoleLicensor  ProviderRole = "licensor"
	RoleProducer  ProviderRole = "producer"
	RoleProcessor ProviderRole = "processor"
	RoleHost      ProviderRole = "host"
)

func (r ProviderRole) Valid() bool {
	switch r {
	case RoleLicensor, RoleProducer, RoleProcessor, RoleHost:
		return true
	}
	return false
}

type Provider struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Roles       []ProviderRole `json:"roles" yaml:"roles"`
	URL         string         `json:"url,omitempty" yaml:"url"`
}

// Product is the public descriptor of an orderable product.
type Product struct {
	Type        string     `json:"type"`
	ConformsTo  []string   `json:"conformsTo"`
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	License     string     `json:"license"`
	Providers   []Provider `json:"providers"`
	Links       []Link     `json:"links"`
}

type ProductsCollection struct {
	Type     string    `json:"type"`
	Products []Product `json:"products"`
	Links    []Link    `json:"links"`
}

type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// RootResponse is the landing document served at "/".
type RootResponse struct {
	ID          string   `json:"id"`
	ConformsTo  []string `json:"conformsTo"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Links       []Link   `json:"links"`
}
