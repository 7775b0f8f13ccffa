package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// Handler wires HTTP endpoints for user administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  *authz.Resolver
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *authz.Resolver, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermListUsers))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/applications", h.listApplications)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermEditUser))
		r.Post("/{id}/role", h.changeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermDeactivateUser))
		r.Post("/{id}/deactivate", h.deactivate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermManageOverrides))
		r.Put("/{id}/overrides/{code}", h.putOverride)
		r.Delete("/{id}/overrides/{code}", h.removeOverride)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermCreateUser))
		r.Post("/applications/{id}/approve", h.approveApplication)
		r.Post("/applications/{id}/reject", h.rejectApplication)
	})
}

type overrideView struct {
	Code   string `json:"code"`
	Shield bool   `json:"shield"`
}

type userView struct {
	ID        int64          `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Role      string         `json:"role"`
	IsActive  bool           `json:"is_active"`
	Overrides []overrideView `json:"overrides"`
}

func toView(u User) userView {
	overrides := make([]overrideView, 0, len(u.Overrides))
	for _, ov := range u.Overrides {
		overrides = append(overrides, overrideView{Code: ov.Code, Shield: ov.Shield})
	}
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		Overrides: overrides,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{
		Role:       authz.Role(r.URL.Query().Get("role")),
		Permission: r.URL.Query().Get("permission"),
	}
	matched, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]userView, 0, len(matched))
	for _, u := range matched {
		views = append(views, toView(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	effective, err := h.service.EffectivePermissions(r.Context(), id, h.resolver)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":      toView(*u),
		"effective": effective,
	})
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is required")
		return
	}
	if err := h.service.ChangeRole(r.Context(), id, authz.Role(req.Role)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putOverrideRequest struct {
	Shield bool `json:"shield"`
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req putOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.PutOverride(r.Context(), id, code, req.Shield); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveOverride(r.Context(), id, chi.URLParam(r, "code")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ListApplications(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applications": apps})
}

type approveRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) approveApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is required")
		return
	}
	if err := h.service.ApproveApplication(r.Context(), id, authz.Role(req.Role)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rejectApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RejectApplication(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such user or application")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "record already exists")
	case errors.Is(err, authz.ErrUnknownPermission), errors.Is(err, authz.ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("users handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
