package authz

// Principal is the resolved identity snapshot carried by a session. It is
// immutable for the session's lifetime; role or override changes take effect
// on the next login.
type Principal struct {
	UserID      int64
	Email       string
	Role        Role
	Permissions Set
}

// Has reports whether the principal's effective set contains code.
func (p Principal) Has(code string) bool {
	return p.Permissions.Has(code)
}

// SessionResolver resolves a bearer token to a principal. A hit refreshes
// the session's sliding expiry.
type SessionResolver interface {
	Lookup(token string) (Principal, bool)
}

// Guard is the request-time authorization entry point.
type Guard struct {
	sessions SessionResolver
}

// NewGuard constructs a Guard over the given session resolver.
func NewGuard(sessions SessionResolver) *Guard {
	return &Guard{sessions: sessions}
}

// Require resolves token and checks that every required permission is
// present in the principal's effective set. With no permissions it is an
// authentication-only check. Resolving the token touches the session's
// last-access time whether or not the permission check passes.
func (g *Guard) Require(token string, perms ...string) (Principal, error) {
	principal, ok := g.sessions.Lookup(token)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	var missing []string
	for _, code := range perms {
		if !principal.Has(code) {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return Principal{}, &PermissionDeniedError{Missing: missing}
	}
	return principal, nil
}

// RequireAny resolves token and checks that at least one of the given
// permissions is present. With no permissions it degrades to an
// authentication-only check.
func (g *Guard) RequireAny(token string, perms ...string) (Principal, error) {
	principal, ok := g.sessions.Lookup(token)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if len(perms) == 0 {
		return principal, nil
	}
	for _, code := range perms {
		if principal.Has(code) {
			return principal, nil
		}
	}
	return Principal{}, &PermissionDeniedError{Missing: perms}
}
