package session

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// Handler exposes operational session endpoints for administrators.
type Handler struct {
	logger *slog.Logger
	store  *Store
	guard  authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *Store, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, guard: guard}
}

// MountRoutes registers session administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAll(authz.PermViewMetrics)).Get("/stats", h.stats)
	r.With(h.guard.RequireAll(authz.PermManageSessions)).Post("/revoke", h.revoke)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"evictions":   stats.Evictions,
		"issued":      stats.Issued,
		"invalidated": stats.Invalidated,
		"active":      stats.Active,
	})
}

type revokeRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.UserID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id is required")
		return
	}
	revoked := h.store.InvalidateUser(req.UserID)
	principal, _ := authz.PrincipalFromContext(r.Context())
	h.logger.Info("sessions revoked",
		slog.Int64("target_user_id", req.UserID),
		slog.Int64("by_user_id", principal.UserID),
		slog.Int("count", revoked))
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}
