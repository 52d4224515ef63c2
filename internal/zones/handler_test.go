package zones

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
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

func newTestRouter(t *testing.T, repo Repository, perms ...string) http.Handler {
	t.Helper()
	templates, err := view.NewEngine(i18n.New("en"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: rbac.NewService(staticPerms{perms: perms}, nil, logger), Logger: logger}
	h := NewHandler(logger, NewService(repo, nil), templates, shared.NewCSRFManager("secret"), mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{ID: "test"}
			sess.SetUser("1", "1")
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Route("/zones", h.MountRoutes)
	return r
}

func TestListZonesPage(t *testing.T) {
	repo := newMockRepository()
	_, _ = repo.Create(context.Background(), Zone{OrganizationID: 1, Code: "NORTH", Name: "North", IsActive: true})
	_, _ = repo.Create(context.Background(), Zone{OrganizationID: 2, Code: "SECRET", Name: "Other tenant"})
	router := newTestRouter(t, repo, shared.PermZonesView)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/zones", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "NORTH")
	assert.NotContains(t, body, "SECRET")
	assert.NotContains(t, body, "/zones/new", "view-only users get no create button")
}

func TestCreateZoneForbiddenWithoutEdit(t *testing.T) {
	router := newTestRouter(t, newMockRepository(), shared.PermZonesView)
	form := url.Values{"code": {"X"}, "name": {"X"}}
	req := httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateZoneFlow(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(t, repo, shared.PermZonesView, shared.PermZonesEdit)

	form := url.Values{"code": {"south"}, "name": {"South"}, "is_active": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/zones/1", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader(url.Values{"code": {"SOUTH"}, "name": {"Dup"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Zone code SOUTH already exists")

	req = httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader(url.Values{"code": {""}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required")
}

func TestShowZoneOtherTenantIsNotFound(t *testing.T) {
	repo := newMockRepository()
	id, _ := repo.Create(context.Background(), Zone{OrganizationID: 2, Code: "X", Name: "X"})
	router := newTestRouter(t, repo, shared.PermZonesView)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/zones/"+strconv.FormatInt(id, 10), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
