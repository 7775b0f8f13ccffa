// Package authz implements the authorization core: a fixed hierarchical
// permission catalog, a closed role catalog, per-user override resolution
// and the request-time guard.
package authz

import (
	"fmt"
	"sort"
)

// Set is a set of permission codes.
type Set map[string]struct{}

// NewSet builds a Set from the given codes.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is a member of the set.
func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the members in sorted order.
func (s Set) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

func (s Set) union(other Set) {
	for c := range other {
		s[c] = struct{}{}
	}
}

func (s Set) subtract(other Set) {
	for c := range other {
		delete(s, c)
	}
}

// NodeSpec describes one catalog entry in the static permission table.
type NodeSpec struct {
	Code     string
	Name     string
	Children []NodeSpec
}

// Node is a single resolved entry of the permission catalog.
type Node struct {
	Code string
	Name string
	// Leaf is true when the node carries no children.
	Leaf bool
}

// Catalog is the process-wide permission tree. It is built once at startup
// and read-only afterwards, so it needs no locking.
type Catalog struct {
	root       string
	nodes      map[string]Node
	expansions map[string]Set
	order      []string
}

// NewCatalog builds a catalog from the static node table. It fails on a
// duplicate code; the table is configuration and a duplicate is a startup
// error, not a runtime condition.
func NewCatalog(root NodeSpec) (*Catalog, error) {
	c := &Catalog{
		root:       root.Code,
		nodes:      make(map[string]Node),
		expansions: make(map[string]Set),
	}
	if _, err := c.build(root); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on error. The catalog table is
// compile-time-known, so a failure here aborts startup.
func MustCatalog(root NodeSpec) *Catalog {
	c, err := NewCatalog(root)
	if err != nil {
		panic(err)
	}
	return c
}

// build registers spec and its subtree, returning the subtree expansion.
func (c *Catalog) build(spec NodeSpec) (Set, error) {
	if spec.Code == "" {
		return nil, fmt.Errorf("authz: permission node with empty code (name %q)", spec.Name)
	}
	if _, exists := c.nodes[spec.Code]; exists {
		return nil, fmt.Errorf("authz: duplicate permission code %q", spec.Code)
	}
	c.nodes[spec.Code] = Node{Code: spec.Code, Name: spec.Name, Leaf: len(spec.Children) == 0}
	c.order = append(c.order, spec.Code)

	// A node's expansion is itself plus the expansions of all children:
	// granting a group grants the group code and every descendant.
	expansion := NewSet(spec.Code)
	for _, child := range spec.Children {
		sub, err := c.build(child)
		if err != nil {
			return nil, err
		}
		expansion.union(sub)
	}
	c.expansions[spec.Code] = expansion
	return expansion, nil
}

// Expand returns the set of codes implied by granting code: the node itself
// and, for a group, every descendant. The result is a copy; callers may
// mutate it freely.
func (c *Catalog) Expand(code string) (Set, error) {
	expansion, ok := c.expansions[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, code)
	}
	return expansion.Clone(), nil
}

// Contains reports whether code exists in the catalog.
func (c *Catalog) Contains(code string) bool {
	_, ok := c.nodes[code]
	return ok
}

// Node returns the catalog entry for code.
func (c *Catalog) Node(code string) (Node, error) {
	node, ok := c.nodes[code]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownPermission, code)
	}
	return node, nil
}

// Root returns the code of the catalog root.
func (c *Catalog) Root() string {
	return c.root
}

// Nodes returns every catalog entry in declaration order. Used by the
// permission listing endpoint.
func (c *Catalog) Nodes() []Node {
	out := make([]Node, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.nodes[code])
	}
	return out
}
