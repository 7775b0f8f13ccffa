package authz

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise/internal/platform/httpx"
)

// PermissionsHandler serves the static permission and role catalogs. Any
// authenticated principal may read them; the catalog carries no per-user
// data.
type PermissionsHandler struct {
	catalog *Catalog
	roles   *RoleCatalog
	guard   Middleware
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(catalog *Catalog, roles *RoleCatalog, guard Middleware) *PermissionsHandler {
	return &PermissionsHandler{catalog: catalog, roles: roles, guard: guard}
}

// MountRoutes registers catalog routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll())
		r.Get("/", h.listPermissions)
		r.Get("/roles", h.listRoles)
	})
}

type nodeView struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Leaf bool   `json:"leaf"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	nodes := h.catalog.Nodes()
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, nodeView{Code: n.Code, Name: n.Name, Leaf: n.Leaf})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	type roleView struct {
		Role     string   `json:"role"`
		Defaults []string `json:"defaults"`
	}
	roles := h.roles.Roles()
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		defaults, err := h.roles.DefaultPermissions(role)
		if err != nil {
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		views = append(views, roleView{Role: string(role), Defaults: defaults.Codes()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}
