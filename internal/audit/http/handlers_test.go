package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/audit"
	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubAuditRBAC struct {
	perms []string
}

func (s stubAuditRBAC) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.perms, nil
}

func newAuditRouter(t *testing.T, service *stubTimelineService, perms []string) http.Handler {
	t.Helper()
	templates, err := view.NewEngine(i18n.New("en"))
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, shared.NewCSRFManager("secret"), audit.NewExporter(), stubAuditRBAC{perms: perms})
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/admin", handler.MountRoutes)
	return r
}

func signedIn(req *http.Request) *http.Request {
	sess := &shared.Session{ID: "test"}
	sess.SetUser("7", "3")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestTimelineRequiresPermission(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit", nil)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "auditor@example.com", Action: "booking.confirm", Entity: "booking", EntityID: "1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit?from=2026-03-01&to=2026-03-15&action=booking.confirm", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "auditor@example.com")
	assert.Equal(t, "2026-03-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, int64(3), service.lastFilters.OrganizationID)
	assert.Equal(t, "booking.confirm", service.lastFilters.Action)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2026-03-08", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "2026-03-15", service.lastFilters.To.Format("2006-01-02"))
	assert.Equal(t, defaultPageSize, service.lastFilters.PageSize)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, []string{shared.PermAuditView})
	for _, query := range []string{
		"from=2026-03-10&to=2026-03-01",
		"from=2025-01-01&to=2026-03-01",
		"from=yesterday",
		"page=0",
		"page_size=x",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit?"+query, nil)))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "auditor@example.com", Action: "deal.sign"}}}
	router := newAuditRouter(t, service, []string{shared.PermAuditView})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit/export.csv?from=2026-03-01&to=2026-03-05", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Body.String(), "auditor@example.com,deal.sign")
}

func TestExportIsRateLimited(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, []string{shared.PermAuditView})
	var last int
	for i := 0; i <= rateLimit; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signedIn(httptest.NewRequest(http.MethodGet, "/admin/audit/export.csv", nil)))
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
