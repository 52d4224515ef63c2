package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// RolesHandler lists the organization's roles and their permissions.
type RolesHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      Middleware
}

// NewRolesHandler builds a RolesHandler.
func NewRolesHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac Middleware) *RolesHandler {
	return &RolesHandler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *RolesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listRoles)
	})
}

func (h *RolesHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	roles, err := h.service.ListRoles(r.Context(), orgID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, map[string]any{"Error": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, map[string]any{"Roles": roles, "Permissions": shared.AllPermissions()}, http.StatusOK)
}

func (h *RolesHandler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, "Roles", data)
	if err := h.templates.RenderStatus(w, status, "users/roles", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
