package authz

// Override is a per-user exception to role defaults. Shield false grants the
// node (and its expansion) beyond the defaults; shield true revokes the node
// regardless of defaults or other grants.
type Override struct {
	Code   string
	Shield bool
}

// Resolver combines role defaults with per-user overrides into an effective
// permission set.
type Resolver struct {
	catalog *Catalog
	roles   *RoleCatalog
}

// NewResolver constructs a Resolver over the given catalogs.
func NewResolver(catalog *Catalog, roles *RoleCatalog) *Resolver {
	return &Resolver{catalog: catalog, roles: roles}
}

// Resolve computes the effective permission set for a role plus overrides.
// All positive grants (defaults and non-shield overrides) are unioned first;
// shields are subtracted strictly afterwards, so a revocation always wins
// regardless of the order overrides were stored in. A grant and a shield on
// the same node is not an error: the shield prevails.
//
// Overrides are validated at the administrative write boundary, but Resolve
// checks codes again since stored rows may predate a catalog change.
func (r *Resolver) Resolve(role Role, overrides []Override) (Set, error) {
	granted, err := r.roles.DefaultPermissions(role)
	if err != nil {
		return nil, err
	}

	var revoked Set
	for _, ov := range overrides {
		expansion, err := r.catalog.Expand(ov.Code)
		if err != nil {
			return nil, err
		}
		if ov.Shield {
			if revoked == nil {
				revoked = NewSet()
			}
			revoked.union(expansion)
			continue
		}
		granted.union(expansion)
	}
	if revoked != nil {
		granted.subtract(revoked)
	}
	return granted, nil
}
