package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/motorcrm/motorcrm/internal/platform/httpx"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// RequireUser rejects anonymous requests. Pages redirect to the login form and
// API calls get a 401 problem response.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasUser := shared.CurrentUserID(r.Context())
		_, hasOrg := shared.CurrentOrgID(r.Context())
		if hasUser && hasOrg {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		target := "/auth/login"
		if r.Method == http.MethodGet && r.URL.Path != "/" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}
