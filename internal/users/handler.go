package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers user routes under /admin/users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Post("/{id:[0-9]+}/activate", h.setActive(true))
		r.Post("/{id:[0-9]+}/deactivate", h.setActive(false))
		r.Post("/{id:[0-9]+}/role", h.changeRole)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	users, err := h.service.List(r.Context(), orgID)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, "Failed to load users", http.StatusInternalServerError)
		return
	}
	roles, err := h.service.RoleNames(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load roles", slog.Any("error", err))
	}
	h.render(w, r, "users/index", "Users", map[string]any{"Users": users, "Roles": roles, "Self": userID}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, CreateUserInput{Role: "agent"}, formErrors{}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	actorID, _ := shared.CurrentUserID(r.Context())
	in := CreateUserInput{
		Email:    r.PostFormValue("email"),
		FullName: r.PostFormValue("full_name"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}
	user, err := h.service.Create(r.Context(), orgID, actorID, in)
	if err != nil {
		in.Password = ""
		status := http.StatusBadRequest
		if errors.Is(err, ErrEmailTaken) {
			status = http.StatusConflict
		}
		h.renderForm(w, r, in, shared.FieldErrors(err), status)
		return
	}
	h.redirectWithFlash(w, r, "/admin/users", "success", "User "+user.Email+" created")
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		orgID, _ := shared.CurrentOrgID(r.Context())
		actorID, _ := shared.CurrentUserID(r.Context())
		if err := h.service.SetActive(r.Context(), orgID, actorID, id, active); err != nil {
			h.failed(w, r, err)
			return
		}
		message := "User deactivated"
		if active {
			message = "User activated"
		}
		h.redirectWithFlash(w, r, "/admin/users", "success", message)
	}
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.ChangeRole(r.Context(), orgID, actorID, id, r.PostFormValue("role")); err != nil {
		h.failed(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/admin/users", "success", "Role updated")
}

func (h *Handler) failed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if !errors.Is(err, ErrSelfChange) && !errors.Is(err, ErrUnknownRole) {
		h.logger.Error("user admin", slog.Any("error", err))
	}
	h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, in CreateUserInput, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	roles, err := h.service.RoleNames(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load roles", slog.Any("error", err))
	}
	h.render(w, r, "users/form", "New user", map[string]any{"Form": in, "Errors": errs, "Roles": roles}, status)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, page, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
