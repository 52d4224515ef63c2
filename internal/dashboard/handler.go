package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// Snapshotter loads the dashboard data.
type Snapshotter interface {
	Snapshot(ctx context.Context, orgID int64) (Snapshot, error)
}

// Handler serves the home page and the public landing page.
type Handler struct {
	logger    *slog.Logger
	service   Snapshotter
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds the dashboard handler.
func NewHandler(logger *slog.Logger, service Snapshotter, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers / and /welcome.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/welcome", h.Welcome)
}

// Index shows the tiles, or sends anonymous visitors to the landing page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.CurrentOrgID(r.Context())
	if !ok {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), orgID)
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "dashboard/index", "Dashboard", snap)
}

// Welcome renders the landing page.
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "dashboard/welcome", "MotorCRM", nil)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any) {
	td := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.Render(w, page, td); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
