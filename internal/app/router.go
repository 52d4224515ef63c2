package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/motorcrm/motorcrm/internal/audit/http"
	"github.com/motorcrm/motorcrm/internal/auth"
	"github.com/motorcrm/motorcrm/internal/bookings"
	"github.com/motorcrm/motorcrm/internal/cars"
	"github.com/motorcrm/motorcrm/internal/customers"
	"github.com/motorcrm/motorcrm/internal/dashboard"
	"github.com/motorcrm/motorcrm/internal/deals"
	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/observability"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/services"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/users"
	"github.com/motorcrm/motorcrm/internal/zones"
	"github.com/motorcrm/motorcrm/jobs"
	"github.com/motorcrm/motorcrm/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Translator     *i18n.Translator
	Metrics        *observability.Metrics
	RBACMiddleware rbac.Middleware
	CurrentUsers   UserLoader

	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	ZonesHandler     *zones.Handler
	CustomersHandler *customers.Handler
	CarsHandler      *cars.Handler
	DealsHandler     *deals.Handler
	ServicesHandler  *services.Handler
	BookingsHandler  *bookings.Handler
	RespondHandler   *bookings.RespondHandler
	RevenueHandler   *revenue.Handler
	DocumentsHandler *documents.Handler
	UsersHandler     *users.Handler
	RolesHandler     *rbac.RolesHandler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with MotorCRM defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var permissions PermissionLoader
	if params.RBACMiddleware.Service != nil {
		permissions = params.RBACMiddleware.Service
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Translator:     params.Translator,
		Users:          params.CurrentUsers,
		Permissions:    permissions,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.Translator != nil {
		r.Route("/locale", params.Translator.MountRoutes)
	}
	r.Route("/auth", params.AuthHandler.MountRoutes)

	if params.RespondHandler != nil {
		r.Route("/respond", params.RespondHandler.MountPage)
	}
	r.Route("/api", func(r chi.Router) {
		if params.RespondHandler != nil {
			params.RespondHandler.MountAPI(r)
		}
		if params.DocumentsHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser, params.RBACMiddleware.RequireAll(shared.PermDocumentsRender))
				r.Post("/documents/render", params.DocumentsHandler.Render)
			})
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		if params.ZonesHandler != nil {
			r.Route("/zones", params.ZonesHandler.MountRoutes)
		}
		if params.CustomersHandler != nil {
			r.Route("/customers", params.CustomersHandler.MountRoutes)
		}
		if params.CarsHandler != nil {
			r.Route("/cars", params.CarsHandler.MountRoutes)
		}
		if params.DealsHandler != nil {
			r.Route("/deals", params.DealsHandler.MountRoutes)
		}
		if params.ServicesHandler != nil {
			r.Route("/services", params.ServicesHandler.MountRoutes)
		}
		if params.BookingsHandler != nil {
			r.Route("/bookings", params.BookingsHandler.MountRoutes)
		}
		if params.RevenueHandler != nil {
			r.Route("/revenue", params.RevenueHandler.MountRoutes)
		}
		if params.DocumentsHandler != nil {
			r.With(params.RBACMiddleware.RequireAll(shared.PermDocumentsRender)).Route("/documents", params.DocumentsHandler.MountRoutes)
		}
		r.Route("/admin", func(r chi.Router) {
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler caches static assets in the browser for one hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
