package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// BearerToken extracts the opaque session token from the Authorization
// header. The token is never parsed beyond stripping the scheme prefix.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}

// Middleware wires the guard into chi handler chains.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// RequireAll gates the wrapped handler behind all of the given permissions.
// With no permissions the check is authentication-only. The resolved
// principal is stored in the request context.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.middleware(func(token string) (Principal, error) {
		return m.Guard.Require(token, perms...)
	})
}

// RequireAny gates the wrapped handler behind at least one of the given
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.middleware(func(token string) (Principal, error) {
		return m.Guard.RequireAny(token, perms...)
	})
}

func (m Middleware) middleware(check func(string) (Principal, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			principal, err := check(token)
			if err != nil {
				m.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// reject translates guard errors to transport responses. Missing permission
// codes are logged for operators but never included in the client body.
func (m Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	var denied *PermissionDeniedError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session absent or expired")
	case errors.As(err, &denied):
		if m.Logger != nil {
			m.Logger.Warn("permission denied",
				slog.String("path", r.URL.Path),
				slog.Any("missing", denied.Missing))
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	default:
		if m.Logger != nil {
			m.Logger.Error("authorization check failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
