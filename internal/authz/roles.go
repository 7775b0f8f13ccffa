package authz

import (
	"fmt"
	"sort"
)

// Role identifies one of the closed set of roles.
type Role string

// RoleCatalog holds the fixed role set with their default grants, expanded
// once at construction. Read-only afterwards.
type RoleCatalog struct {
	defaults map[Role]Set
	// granting is the inverse index: code -> roles whose defaults include it.
	granting map[string][]Role
	order    []Role
}

// NewRoleCatalog expands each role's seed nodes through the catalog. A seed
// referencing an unknown code fails construction; the role table is
// configuration and must abort startup when broken.
func NewRoleCatalog(catalog *Catalog, seeds map[Role][]string) (*RoleCatalog, error) {
	rc := &RoleCatalog{
		defaults: make(map[Role]Set, len(seeds)),
		granting: make(map[string][]Role),
	}
	for role, codes := range seeds {
		defaults := NewSet()
		for _, code := range codes {
			expansion, err := catalog.Expand(code)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			defaults.union(expansion)
		}
		rc.defaults[role] = defaults
		rc.order = append(rc.order, role)
	}
	sort.Slice(rc.order, func(i, j int) bool { return rc.order[i] < rc.order[j] })
	for _, role := range rc.order {
		for code := range rc.defaults[role] {
			rc.granting[code] = append(rc.granting[code], role)
		}
	}
	return rc, nil
}

// MustRoleCatalog is NewRoleCatalog that panics on error.
func MustRoleCatalog(catalog *Catalog, seeds map[Role][]string) *RoleCatalog {
	rc, err := NewRoleCatalog(catalog, seeds)
	if err != nil {
		panic(err)
	}
	return rc
}

// Contains reports whether role is part of the catalog.
func (rc *RoleCatalog) Contains(role Role) bool {
	_, ok := rc.defaults[role]
	return ok
}

// DefaultPermissions returns the role's expanded default grant set as an
// independent copy.
func (rc *RoleCatalog) DefaultPermissions(role Role) (Set, error) {
	defaults, ok := rc.defaults[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return defaults.Clone(), nil
}

// RolesGranting returns the roles whose defaults include code, in stable
// order. This is the inverse index used by the user listing filter.
func (rc *RoleCatalog) RolesGranting(code string) []Role {
	roles := rc.granting[code]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// Roles returns all role ids in stable order.
func (rc *RoleCatalog) Roles() []Role {
	out := make([]Role, len(rc.order))
	copy(out, rc.order)
	return out
}
