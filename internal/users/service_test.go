package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/users"
)

type fakeRepo struct {
	users        map[int64]*users.User
	applications map[int64]*users.Application
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:        make(map[int64]*users.User),
		applications: make(map[int64]*users.Application),
	}
}

func (r *fakeRepo) add(u users.User) {
	copied := u
	r.users[u.ID] = &copied
}

func (r *fakeRepo) ListUsers(ctx context.Context) ([]users.User, error) {
	out := make([]users.User, 0, len(r.users))
	for id := int64(1); id <= int64(len(r.users)); id++ {
		if u, ok := r.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetUser(ctx context.Context, id int64) (*users.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeRepo) SetRole(ctx context.Context, id int64, role authz.Role) error {
	u, ok := r.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.Role = role
	return nil
}

func (r *fakeRepo) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (r *fakeRepo) GetOverride(ctx context.Context, userID int64, code string) (bool, bool, error) {
	u, ok := r.users[userID]
	if !ok {
		return false, false, nil
	}
	for _, ov := range u.Overrides {
		if ov.Code == code {
			return ov.Shield, true, nil
		}
	}
	return false, false, nil
}

func (r *fakeRepo) UpsertOverride(ctx context.Context, userID int64, code string, shield bool) error {
	u, ok := r.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	for i, ov := range u.Overrides {
		if ov.Code == code {
			u.Overrides[i].Shield = shield
			return nil
		}
	}
	u.Overrides = append(u.Overrides, authz.Override{Code: code, Shield: shield})
	return nil
}

func (r *fakeRepo) DeleteOverride(ctx context.Context, userID int64, code string) error {
	u, ok := r.users[userID]
	if !ok {
		return nil
	}
	for i, ov := range u.Overrides {
		if ov.Code == code {
			u.Overrides = append(u.Overrides[:i], u.Overrides[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRepo) ListApplications(ctx context.Context) ([]users.Application, error) {
	out := make([]users.Application, 0, len(r.applications))
	for _, a := range r.applications {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeRepo) ApproveApplication(ctx context.Context, id int64, role authz.Role) (string, error) {
	a, ok := r.applications[id]
	if !ok {
		return "", users.ErrNotFound
	}
	delete(r.applications, id)
	userID := int64(len(r.users) + 1)
	r.users[userID] = &users.User{ID: userID, Email: a.Email, Name: a.Name, Role: role, IsActive: true}
	return a.Email, nil
}

func (r *fakeRepo) RejectApplication(ctx context.Context, id int64) (string, error) {
	a, ok := r.applications[id]
	if !ok {
		return "", users.ErrNotFound
	}
	a.Rejected = true
	return a.Email, nil
}

type fakeRevoker struct {
	revoked []int64
}

func (f *fakeRevoker) InvalidateUser(userID int64) int {
	f.revoked = append(f.revoked, userID)
	return 1
}

func newUsersService(t *testing.T, repo users.Repository) *users.Service {
	t.Helper()
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	return users.NewService(repo, catalog, roles, nil, nil, nil)
}

func seededRepo() *fakeRepo {
	repo := newFakeRepo()
	repo.add(users.User{ID: 1, Email: "admin@gatewise.local", Role: authz.RoleAdmin, IsActive: true})
	repo.add(users.User{ID: 2, Email: "ops@gatewise.local", Role: authz.RoleOperationAdmin, IsActive: true})
	// Operator shielded from the whole graph subtree.
	repo.add(users.User{ID: 3, Email: "ops2@gatewise.local", Role: authz.RoleOperationAdmin, IsActive: true,
		Overrides: []authz.Override{{Code: authz.PermGraph, Shield: true}}})
	// Viewer with an explicit grant on graph editing.
	repo.add(users.User{ID: 4, Email: "viewer@gatewise.local", Role: authz.RoleViewer, IsActive: true,
		Overrides: []authz.Override{{Code: authz.PermEditGraph}}})
	repo.add(users.User{ID: 5, Email: "useradmin@gatewise.local", Role: authz.RoleUserAdmin, IsActive: true})
	return repo
}

func ids(list []users.User) []int64 {
	out := make([]int64, len(list))
	for i, u := range list {
		out[i] = u.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListNoFilters(t *testing.T) {
	svc := newUsersService(t, seededRepo())

	list, err := svc.List(context.Background(), users.ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("got %d users, want 5", len(list))
	}
}

func TestListByRole(t *testing.T) {
	svc := newUsersService(t, seededRepo())

	list, err := svc.List(context.Background(), users.ListFilters{Role: authz.RoleOperationAdmin})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !equalIDs(ids(list), []int64{2, 3}) {
		t.Fatalf("ids = %v, want [2 3]", ids(list))
	}
}

func TestListByPermission(t *testing.T) {
	svc := newUsersService(t, seededRepo())

	// G_E holders: admin (role), ops (role), viewer (explicit grant).
	// ops2 is role-implied but shielded from the G subtree.
	list, err := svc.List(context.Background(), users.ListFilters{Permission: authz.PermEditGraph})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !equalIDs(ids(list), []int64{1, 2, 4}) {
		t.Fatalf("ids = %v, want [1 2 4]", ids(list))
	}
}

func TestListByPermissionAndRoleIntersect(t *testing.T) {
	svc := newUsersService(t, seededRepo())

	// The viewer holds G_E via an override, but the role filter excludes it.
	list, err := svc.List(context.Background(), users.ListFilters{
		Permission: authz.PermEditGraph,
		Role:       authz.RoleOperationAdmin,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !equalIDs(ids(list), []int64{2}) {
		t.Fatalf("ids = %v, want [2]", ids(list))
	}
}

func TestListRejectsUnknownFilters(t *testing.T) {
	svc := newUsersService(t, seededRepo())
	ctx := context.Background()

	if _, err := svc.List(ctx, users.ListFilters{Permission: "NOPE"}); !errors.Is(err, authz.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	if _, err := svc.List(ctx, users.ListFilters{Role: "ghost"}); !errors.Is(err, authz.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestListSurfacesStaleStoredOverride(t *testing.T) {
	repo := seededRepo()
	repo.add(users.User{
		ID:       6,
		Email:    "stale@gatewise.local",
		Role:     authz.RoleViewer,
		IsActive: true,
		Overrides: []authz.Override{
			{Code: "RETIRED_CODE", Shield: false},
		},
	})
	svc := newUsersService(t, repo)

	// A stored override referencing a code the catalog no longer carries
	// must fail the listing, matching the grant resolver's behavior at
	// login, not silently shape the filter result.
	_, err := svc.List(context.Background(), users.ListFilters{Permission: authz.PermEditGraph})
	if !errors.Is(err, authz.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission for stale override, got %v", err)
	}
}

func TestEffectivePermissions(t *testing.T) {
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	resolver := authz.NewResolver(catalog, roles)
	svc := users.NewService(seededRepo(), catalog, roles, nil, nil, nil)

	codes, err := svc.EffectivePermissions(context.Background(), 3, resolver)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	for _, code := range codes {
		if code == authz.PermEditGraph || code == authz.PermGraph {
			t.Fatalf("shielded code %s present in %v", code, codes)
		}
	}
}

func TestChangeRole(t *testing.T) {
	repo := seededRepo()
	svc := newUsersService(t, repo)
	ctx := context.Background()

	if err := svc.ChangeRole(ctx, 4, authz.RoleUserAdmin); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if repo.users[4].Role != authz.RoleUserAdmin {
		t.Fatalf("role = %s, want user_admin", repo.users[4].Role)
	}

	if err := svc.ChangeRole(ctx, 4, "ghost"); !errors.Is(err, authz.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if err := svc.ChangeRole(ctx, 999, authz.RoleViewer); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivateRevokesSessions(t *testing.T) {
	repo := seededRepo()
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	revoker := &fakeRevoker{}
	svc := users.NewService(repo, catalog, roles, revoker, nil, nil)

	if err := svc.Deactivate(context.Background(), 2); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if repo.users[2].IsActive {
		t.Fatal("user still active")
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != 2 {
		t.Fatalf("revoked = %v, want [2]", revoker.revoked)
	}
}

func TestPutOverride(t *testing.T) {
	repo := seededRepo()
	svc := newUsersService(t, repo)
	ctx := context.Background()

	if err := svc.PutOverride(ctx, 5, authz.PermViewGraph, false); err != nil {
		t.Fatalf("put override: %v", err)
	}
	// Identical resubmission conflicts.
	if err := svc.PutOverride(ctx, 5, authz.PermViewGraph, false); !errors.Is(err, users.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Flipping grant to shield replaces in place.
	if err := svc.PutOverride(ctx, 5, authz.PermViewGraph, true); err != nil {
		t.Fatalf("flip override: %v", err)
	}
	if len(repo.users[5].Overrides) != 1 || !repo.users[5].Overrides[0].Shield {
		t.Fatalf("overrides = %+v, want one shield", repo.users[5].Overrides)
	}

	// Unknown codes are rejected at the write boundary.
	if err := svc.PutOverride(ctx, 5, "NOPE", false); !errors.Is(err, authz.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestRemoveOverride(t *testing.T) {
	repo := seededRepo()
	svc := newUsersService(t, repo)
	ctx := context.Background()

	if err := svc.RemoveOverride(ctx, 4, authz.PermEditGraph); err != nil {
		t.Fatalf("remove override: %v", err)
	}
	if len(repo.users[4].Overrides) != 0 {
		t.Fatalf("overrides = %+v, want none", repo.users[4].Overrides)
	}
	// Idempotent.
	if err := svc.RemoveOverride(ctx, 4, authz.PermEditGraph); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := svc.RemoveOverride(ctx, 4, "NOPE"); !errors.Is(err, authz.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

type captureMailer struct {
	to      []string
	subject []string
}

func (m *captureMailer) EnqueueEmail(ctx context.Context, to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	return nil
}

func TestApproveApplication(t *testing.T) {
	repo := seededRepo()
	repo.applications[10] = &users.Application{ID: 10, Email: "new@gatewise.local", Name: "New"}
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	mailer := &captureMailer{}
	svc := users.NewService(repo, catalog, roles, nil, mailer, nil)
	ctx := context.Background()

	if err := svc.ApproveApplication(ctx, 10, authz.RoleViewer); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(repo.applications) != 0 {
		t.Fatal("application still pending")
	}
	if len(mailer.to) != 1 || mailer.to[0] != "new@gatewise.local" {
		t.Fatalf("notification = %v", mailer.to)
	}

	if err := svc.ApproveApplication(ctx, 10, authz.RoleViewer); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.ApproveApplication(ctx, 11, "ghost"); !errors.Is(err, authz.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRejectApplication(t *testing.T) {
	repo := seededRepo()
	repo.applications[10] = &users.Application{ID: 10, Email: "new@gatewise.local", Name: "New"}
	catalog := authz.DefaultCatalog()
	roles := authz.DefaultRoleCatalog(catalog)
	mailer := &captureMailer{}
	svc := users.NewService(repo, catalog, roles, nil, mailer, nil)

	if err := svc.RejectApplication(context.Background(), 10); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !repo.applications[10].Rejected {
		t.Fatal("application not marked rejected")
	}
	if len(mailer.subject) != 1 || mailer.subject[0] != "Application declined" {
		t.Fatalf("notification = %v", mailer.subject)
	}
}
