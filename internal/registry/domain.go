// Package registry holds the routing graph, provider and model registries:
// the data-routing configuration that the authorization core gates. The
// routing engine itself runs elsewhere; this is its administrative surface.
package registry

import (
	"encoding/json"
	"time"
)

// Provider is an upstream inference provider entry.
type Provider struct {
	ID        int64
	Name      string
	Kind      string
	BaseURL   string
	Enabled   bool
	UpdatedAt time.Time
}

// Model is a routable model entry bound to a provider.
type Model struct {
	ID        int64
	Provider  string
	Name      string
	Enabled   bool
	UpdatedAt time.Time
}

// Graph is one version of the routing graph. Definition is opaque to the
// control plane; only the routing engine interprets it.
type Graph struct {
	Version    int64
	Definition json.RawMessage
	Published  bool
	UpdatedAt  time.Time
}
