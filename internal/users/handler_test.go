package users_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/session"
	"github.com/gatewise/gatewise/internal/users"
	_ "github.com/gatewise/gatewise/testing"
)

type testEnv struct {
	router   *chi.Mux
	sessions *session.Store
	repo     *fakeRepo
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := seededRepo()
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	resolver := authz.NewResolver(catalog, roles)
	sessions := session.NewStore(time.Hour)
	guard := authz.Middleware{Guard: authz.NewGuard(sessions)}
	service := users.NewService(repo, catalog, roles, sessions, nil, nil)
	handler := users.NewHandler(nil, service, resolver, guard)

	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)
	return &testEnv{router: r, sessions: sessions, repo: repo}
}

func (e *testEnv) tokenWith(perms ...string) string {
	return e.sessions.Issue(authz.Principal{
		UserID:      100,
		Email:       "actor@gatewise.local",
		Role:        authz.RoleUserAdmin,
		Permissions: authz.NewSet(perms...),
	})
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func TestListUsersEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.tokenWith(authz.PermListUsers)

	res := env.do(t, http.MethodGet, "/users/", token, "")
	if res.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", res.Code, res.Body.String())
	}
	var body struct {
		Users []struct {
			ID   int64  `json:"id"`
			Role string `json:"role"`
		} `json:"users"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Users) != 5 {
		t.Fatalf("got %d users, want 5", len(body.Users))
	}

	res = env.do(t, http.MethodGet, "/users/?permission=G_E", token, "")
	if res.Code != http.StatusOK {
		t.Fatalf("filtered: status %d, want 200", res.Code)
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Users) != 3 {
		t.Fatalf("G_E holders = %d, want 3", len(body.Users))
	}

	res = env.do(t, http.MethodGet, "/users/?permission=BOGUS", token, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad filter: status %d, want 400", res.Code)
	}
}

func TestListUsersRequiresPermission(t *testing.T) {
	env := newEnv(t)

	res := env.do(t, http.MethodGet, "/users/", "", "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d, want 401", res.Code)
	}

	token := env.tokenWith(authz.PermViewGraph)
	res = env.do(t, http.MethodGet, "/users/", token, "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("wrong permission: status %d, want 403", res.Code)
	}
}

func TestGetUserEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.tokenWith(authz.PermListUsers)

	res := env.do(t, http.MethodGet, "/users/3", token, "")
	if res.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", res.Code, res.Body.String())
	}
	var body struct {
		User struct {
			ID        int64 `json:"id"`
			Overrides []struct {
				Code   string `json:"code"`
				Shield bool   `json:"shield"`
			} `json:"overrides"`
		} `json:"user"`
		Effective []string `json:"effective"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.User.Overrides) != 1 || !body.User.Overrides[0].Shield {
		t.Fatalf("overrides = %+v, want one shield", body.User.Overrides)
	}
	for _, code := range body.Effective {
		if strings.HasPrefix(code, "G") {
			t.Fatalf("effective set contains shielded code %s", code)
		}
	}

	res = env.do(t, http.MethodGet, "/users/999", token, "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("missing user: status %d, want 404", res.Code)
	}
	res = env.do(t, http.MethodGet, "/users/abc", token, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d, want 400", res.Code)
	}
}

func TestChangeRoleEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.tokenWith(authz.PermEditUser)

	res := env.do(t, http.MethodPost, "/users/4/role", token, `{"role":"user_admin"}`)
	if res.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204: %s", res.Code, res.Body.String())
	}
	if env.repo.users[4].Role != authz.RoleUserAdmin {
		t.Fatalf("role = %s, want user_admin", env.repo.users[4].Role)
	}

	res = env.do(t, http.MethodPost, "/users/4/role", token, `{"role":"ghost"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: status %d, want 400", res.Code)
	}

	// Listing permission alone does not let you edit.
	listOnly := env.tokenWith(authz.PermListUsers)
	res = env.do(t, http.MethodPost, "/users/4/role", listOnly, `{"role":"viewer"}`)
	if res.Code != http.StatusForbidden {
		t.Fatalf("list-only: status %d, want 403", res.Code)
	}
}

func TestDeactivateEndpointRevokesSessions(t *testing.T) {
	env := newEnv(t)
	token := env.tokenWith(authz.PermDeactivateUser)

	victim := env.sessions.Issue(authz.Principal{UserID: 2, Role: authz.RoleOperationAdmin, Permissions: authz.NewSet()})

	res := env.do(t, http.MethodPost, "/users/2/deactivate", token, "")
	if res.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", res.Code)
	}
	if env.repo.users[2].IsActive {
		t.Fatal("user still active")
	}
	if _, ok := env.sessions.Lookup(victim); ok {
		t.Fatal("victim session survived deactivation")
	}
}

func TestOverrideEndpoints(t *testing.T) {
	env := newEnv(t)
	token := env.tokenWith(authz.PermManageOverrides)

	res := env.do(t, http.MethodPut, "/users/5/overrides/G_V", token, `{"shield":false}`)
	if res.Code != http.StatusNoContent {
		t.Fatalf("put: status %d, want 204: %s", res.Code, res.Body.String())
	}
	res = env.do(t, http.MethodPut, "/users/5/overrides/G_V", token, `{"shield":false}`)
	if res.Code != http.StatusConflict {
		t.Fatalf("duplicate put: status %d, want 409", res.Code)
	}
	res = env.do(t, http.MethodPut, "/users/5/overrides/BOGUS", token, `{"shield":true}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown code: status %d, want 400", res.Code)
	}
	res = env.do(t, http.MethodDelete, "/users/5/overrides/G_V", token, "")
	if res.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d, want 204", res.Code)
	}
	// Idempotent delete.
	res = env.do(t, http.MethodDelete, "/users/5/overrides/G_V", token, "")
	if res.Code != http.StatusNoContent {
		t.Fatalf("second delete: status %d, want 204", res.Code)
	}
}

func TestApplicationEndpoints(t *testing.T) {
	env := newEnv(t)
	env.repo.applications[10] = &users.Application{ID: 10, Email: "new@gatewise.local", Name: "New"}

	listToken := env.tokenWith(authz.PermListUsers)
	res := env.do(t, http.MethodGet, "/users/applications", listToken, "")
	if res.Code != http.StatusOK {
		t.Fatalf("list applications: status %d, want 200", res.Code)
	}

	createToken := env.tokenWith(authz.PermCreateUser)
	res = env.do(t, http.MethodPost, "/users/applications/10/approve", createToken, `{"role":"viewer"}`)
	if res.Code != http.StatusNoContent {
		t.Fatalf("approve: status %d, want 204: %s", res.Code, res.Body.String())
	}
	if len(env.repo.applications) != 0 {
		t.Fatal("application still pending after approval")
	}

	res = env.do(t, http.MethodPost, "/users/applications/10/reject", createToken, "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("reject decided: status %d, want 404", res.Code)
	}

	// Listing permission does not allow deciding applications.
	res = env.do(t, http.MethodPost, "/users/applications/10/approve", listToken, `{"role":"viewer"}`)
	if res.Code != http.StatusForbidden {
		t.Fatalf("list-only approve: status %d, want 403", res.Code)
	}
}
