package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/platform/cache"
	"github.com/motorcrm/motorcrm/internal/shared"
)

type memoryStore struct {
	perms     map[int64][]string
	roles     map[string]Role
	userRole  map[int64]int64
	permCalls int
	ensured   []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{perms: map[int64][]string{}, roles: map[string]Role{}, userRole: map[int64]int64{}}
}

func (m *memoryStore) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) RoleByName(ctx context.Context, orgID int64, name string) (Role, error) {
	r, ok := m.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	m.ensured = append(m.ensured, name)
	return Permission{ID: int64(len(m.ensured)), Name: name, Description: description}, nil
}

func (m *memoryStore) EnsureRole(ctx context.Context, orgID int64, name, description string, permissions []string) (Role, error) {
	r := Role{ID: int64(len(m.roles) + 1), OrganizationID: orgID, Name: name, Description: description, Permissions: permissions}
	m.roles[name] = r
	return r, nil
}

func (m *memoryStore) ReplaceUserRole(ctx context.Context, userID, roleID int64) error {
	m.userRole[userID] = roleID
	for _, r := range m.roles {
		if r.ID == roleID {
			m.perms[userID] = r.Permissions
		}
	}
	return nil
}

func (m *memoryStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	m.permCalls++
	return m.perms[userID], nil
}

func (m *memoryStore) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *memoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := newMemoryStore()
	return NewService(store, cache.NewJSONCache(client, "rbac:perms:", time.Minute), nil), store
}

func TestEffectivePermissionsAreCached(t *testing.T) {
	svc, store := newTestService(t)
	store.perms[7] = []string{"zones.view"}
	ctx := context.Background()

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"zones.view"}, perms)

	store.perms[7] = []string{"zones.view", "zones.edit"}
	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"zones.view"}, perms)
	assert.Equal(t, 1, store.permCalls)

	require.NoError(t, svc.Invalidate(ctx, 7))
	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, perms, 2)
	assert.Equal(t, 2, store.permCalls)
}

func TestSeedAndAssignRole(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	roles, err := svc.SeedBuiltins(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, roles, 3)
	assert.Len(t, store.ensured, len(shared.AllPermissions()))

	_, err = svc.EffectivePermissions(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 1, 9, "manager"))

	ok, err := svc.Grants(ctx, 9, shared.PermUsersView)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Grants(ctx, 9, shared.PermUsersEdit)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.AssignRole(ctx, 1, 9, "ghost"), ErrNotFound)
}

func TestMiddlewareRequireAny(t *testing.T) {
	svc, store := newTestService(t)
	store.perms[3] = []string{"cars.view"}
	mw := Middleware{Service: svc}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		name   string
		user   string
		path   string
		perms  []string
		status int
		json   bool
	}{
		{name: "granted", user: "3", path: "/cars", perms: []string{"cars.view", "cars.edit"}, status: http.StatusNoContent},
		{name: "missing", user: "3", path: "/cars/new", perms: []string{"cars.edit"}, status: http.StatusForbidden},
		{name: "anonymous", path: "/cars", perms: []string{"cars.view"}, status: http.StatusForbidden},
		{name: "api problem", user: "3", path: "/api/documents/render", perms: []string{"documents.render"}, status: http.StatusForbidden, json: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			sess := &shared.Session{ID: "s"}
			if tc.user != "" {
				sess.SetUser(tc.user, "1")
			}
			req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			rec := httptest.NewRecorder()
			mw.RequireAny(tc.perms...)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.json {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireAll(t *testing.T) {
	svc, store := newTestService(t)
	store.perms[4] = []string{"deals.view"}
	mw := Middleware{Service: svc}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/deals", nil)
	sess := &shared.Session{ID: "s"}
	sess.SetUser("4", "1")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	mw.RequireAll("deals.view", "deals.edit")(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
