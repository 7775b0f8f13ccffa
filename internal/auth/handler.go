package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/apply", h.handleApply)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll())
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		case errors.Is(err, ErrLockedOut):
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many failed attempts, retry later")
		case errors.Is(err, ErrUnconfirmed):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "account awaiting email confirmation")
		case errors.Is(err, ErrApplicationPending):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "application awaiting review")
		case errors.Is(err, ErrApplicationRejected):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "application was declined")
		default:
			h.logger.Error("login", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	httpx.JSON(w, http.StatusCreated, loginResponse{
		Token:     result.Token,
		ExpiresIn: int64(result.ExpiresIn.Seconds()),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := authz.BearerToken(r)
	if ok {
		h.service.Logout(r.Context(), token)
	}
	// Logging out an absent session is still a successful logout.
	w.WriteHeader(http.StatusNoContent)
}

type applyRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email, name and password are required")
		return
	}

	id, err := h.service.Apply(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate), errors.Is(err, ErrApplicationPending):
			httpx.Problem(w, http.StatusConflict, "Duplicate", "an account or application already exists for this email")
		case errors.Is(err, ErrApplicationRejected):
			httpx.Problem(w, http.StatusConflict, "Duplicate", "a previous application for this email was declined")
		default:
			h.logger.Error("apply", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"application_id": id})
}

type meResponse struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session absent or expired")
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID:      principal.UserID,
		Email:       principal.Email,
		Role:        string(principal.Role),
		Permissions: principal.Permissions.Codes(),
	})
}
