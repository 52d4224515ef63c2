package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/users"
	"github.com/motorcrm/motorcrm/internal/view"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStackRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         discardLogger(),
		Config:         &Config{AppEnv: "test", AppRequestTimeout: time.Second},
		SessionManager: shared.NewSessionManager(client, "motorcrm_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("secret"),
		Translator:     i18n.New("en"),
	}) {
		r.Use(mw)
	}
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.Post("/zones", ok)
	r.Post("/api/booking-services/1/respond", ok)
	return r
}

func TestCSRFProtectsForms(t *testing.T) {
	router := newStackRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/zones", strings.NewReader("name=x")))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCSRFSkipsBearerAPICalls(t *testing.T) {
	router := newStackRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/booking-services/1/respond", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/booking-services/1/respond", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCSRFExempt(t *testing.T) {
	bearer := func(path, header string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return req
	}
	assert.True(t, csrfExempt(bearer("/api/booking-services/3/respond", "Bearer tok")))
	assert.True(t, csrfExempt(bearer("/api/booking-services/3/respond", "bearer tok")))
	assert.False(t, csrfExempt(bearer("/api/booking-services/3/respond", "")))
	assert.False(t, csrfExempt(bearer("/api/booking-services/3/respond", "Basic dXNlcg==")))
	assert.False(t, csrfExempt(bearer("/bookings/3/send", "Bearer tok")))
}

type stubUsers struct {
	user *users.User
	err  error
}

func (s stubUsers) Get(ctx context.Context, orgID, id int64) (*users.User, error) {
	return s.user, s.err
}

type stubPerms []string

func (s stubPerms) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s, nil
}

func serveWithUser(t *testing.T, loader UserLoader) (*httptest.ResponseRecorder, *view.CurrentUser) {
	t.Helper()
	var seen *view.CurrentUser
	mw := currentUserMiddleware(MiddlewareConfig{
		Logger:         discardLogger(),
		SessionManager: shared.NewSessionManager(nil, "motorcrm_session", time.Hour, false),
		Users:          loader,
		Permissions:    stubPerms{shared.PermBookingsView},
	})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = view.CurrentUserFromContext(r.Context())
	}))
	sess := &shared.Session{ID: "test"}
	sess.SetUser("5", "2")
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func TestCurrentUserLoadsPermissions(t *testing.T) {
	_, seen := serveWithUser(t, stubUsers{user: &users.User{ID: 5, FullName: "Nadia Agent", IsActive: true}})
	require.NotNil(t, seen)
	assert.Equal(t, "Nadia Agent", seen.Name)
	assert.True(t, seen.Permissions[shared.PermBookingsView])
	assert.False(t, seen.Permissions[shared.PermUsersEdit])
}

func TestCurrentUserDropsInactiveAccounts(t *testing.T) {
	rr, seen := serveWithUser(t, stubUsers{user: &users.User{ID: 5, IsActive: false}})
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))

	rr, seen = serveWithUser(t, stubUsers{err: errors.New("gone")})
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}
