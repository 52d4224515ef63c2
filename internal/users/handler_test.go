package users

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

type staticPerms struct {
	rbac.Store
	perms []string
}

func (s staticPerms) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.perms, nil
}

func newTestRouter(t *testing.T, repo *mockRepository, sess *shared.Session, perms ...string) http.Handler {
	t.Helper()
	templates, err := view.NewEngine(i18n.New("en"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: rbac.NewService(staticPerms{perms: perms}, nil, logger), Logger: logger}
	h := NewHandler(logger, NewService(repo, fakeRoles{repo}, nil), templates, shared.NewCSRFManager("secret"), mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Route("/admin/users", h.MountRoutes)
	return r
}

func adminSession() *shared.Session {
	sess := &shared.Session{ID: "test"}
	sess.SetUser("1", "1")
	return sess
}

func postForm(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListUsers(t *testing.T) {
	router := newTestRouter(t, newMockRepository(), adminSession(), shared.PermUsersView)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent@example.com")
	assert.NotContains(t, rec.Body.String(), "/deactivate")
}

func TestCreateUserForm(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(t, repo, adminSession(), shared.PermUsersView, shared.PermUsersEdit)

	rec := postForm(router, "/admin/users", url.Values{"email": {"bad"}, "full_name": {"X"}, "password": {"short"}, "role": {"agent"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), `value="short"`)

	rec = postForm(router, "/admin/users", url.Values{"email": {"sam@example.com"}, "full_name": {"Sam"}, "password": {"longenough"}, "role": {"agent"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/users", rec.Header().Get("Location"))
	assert.Len(t, repo.users, 3)
}

func TestSelfDeactivateFlashesError(t *testing.T) {
	repo := newMockRepository()
	sess := adminSession()
	router := newTestRouter(t, repo, sess, shared.PermUsersEdit)

	rec := postForm(router, "/admin/users/1/deactivate", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, repo.users[1].IsActive)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)

	rec = postForm(router, "/admin/users/2/deactivate", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, repo.users[2].IsActive)

	rec = postForm(router, "/admin/users/99/activate", url.Values{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
