package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// Store is the registry persistence surface the handler needs.
type Store interface {
	ListProviders(ctx context.Context) ([]Provider, error)
	UpsertProvider(ctx context.Context, name, kind, baseURL string, enabled bool) error
	ListModels(ctx context.Context) ([]Model, error)
	UpsertModel(ctx context.Context, provider, name string, enabled bool) error
	LatestGraph(ctx context.Context) (Graph, error)
	SaveGraph(ctx context.Context, definition json.RawMessage) (int64, error)
	PublishGraph(ctx context.Context, version int64) error
}

// Handler wires the gated registry routes. Each route group requires the
// matching permission group from the catalog.
type Handler struct {
	logger    *slog.Logger
	repo      Store
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo Store, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo, guard: guard, validator: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/graph", func(r chi.Router) {
		r.With(h.guard.RequireAll(authz.PermViewGraph)).Get("/", h.getGraph)
		r.With(h.guard.RequireAll(authz.PermEditGraph)).Put("/", h.putGraph)
		r.With(h.guard.RequireAll(authz.PermPublishGraph)).Post("/publish", h.publishGraph)
	})
	r.Route("/providers", func(r chi.Router) {
		r.With(h.guard.RequireAll(authz.PermViewProviders)).Get("/", h.listProviders)
		r.With(h.guard.RequireAll(authz.PermEditProviders)).Put("/{name}", h.putProvider)
	})
	r.Route("/models", func(r chi.Router) {
		r.With(h.guard.RequireAll(authz.PermViewModels)).Get("/", h.listModels)
		r.With(h.guard.RequireAll(authz.PermEditModels)).Put("/{provider}/{name}", h.putModel)
	})
}

func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.repo.LatestGraph(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":    graph.Version,
		"definition": graph.Definition,
		"published":  graph.Published,
	})
}

func (h *Handler) putGraph(w http.ResponseWriter, r *http.Request) {
	var definition json.RawMessage
	if err := httpx.DecodeJSON(r, &definition); err != nil || len(definition) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "graph definition must be valid JSON")
		return
	}
	version, err := h.repo.SaveGraph(r.Context(), definition)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"version": version})
}

type publishRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

func (h *Handler) publishGraph(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "version is required")
		return
	}
	if err := h.repo.PublishGraph(r.Context(), req.Version); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.repo.ListProviders(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"providers": providers})
}

type putProviderRequest struct {
	Kind    string `json:"kind" validate:"required"`
	BaseURL string `json:"base_url" validate:"required,url"`
	Enabled bool   `json:"enabled"`
}

func (h *Handler) putProvider(w http.ResponseWriter, r *http.Request) {
	var req putProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind and base_url are required")
		return
	}
	if err := h.repo.UpsertProvider(r.Context(), chi.URLParam(r, "name"), req.Kind, req.BaseURL, req.Enabled); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.repo.ListModels(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"models": models})
}

type putModelRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) putModel(w http.ResponseWriter, r *http.Request) {
	var req putModelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.repo.UpsertModel(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "name"), req.Enabled); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such registry entry")
		return
	}
	h.logger.Error("registry handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
