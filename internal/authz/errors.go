package authz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownPermission indicates a code absent from the catalog. This is
	// a configuration or programmer error and must never be silently ignored.
	ErrUnknownPermission = errors.New("authz: unknown permission code")
	// ErrUnknownRole indicates a role id absent from the role catalog.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrUnauthenticated indicates an absent, expired or invalidated token.
	// Recoverable by logging in again.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
)

// PermissionDeniedError is returned when an authenticated principal lacks
// one or more required permissions. Missing lists the absent codes for
// server-side diagnostics; it must not be exposed verbatim to clients.
type PermissionDeniedError struct {
	Missing []string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("authz: permission denied (missing %s)", strings.Join(e.Missing, ", "))
}

// IsPermissionDenied reports whether err is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}
