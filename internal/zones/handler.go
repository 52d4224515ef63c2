package zones

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// Handler serves the zone pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

type formErrors map[string]string

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	var active *bool
	if v := q.Get("active"); v != "" {
		b := v == "true"
		active = &b
	}
	page := shared.PageFromQuery(q)
	req := ListZonesRequest{OrganizationID: orgID, Search: search, IsActive: active, Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage}
	zones, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list zones", slog.Any("error", err))
		http.Error(w, "Failed to load zones", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if active != nil {
		base.Set("active", q.Get("active"))
	}
	h.render(w, r, "zones/index", "Zones", map[string]any{
		"Zones":      zones,
		"Search":     search,
		"Active":     q.Get("active"),
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/zones?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	zone, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "zones/show", zone.Name, map[string]any{"Zone": zone}, http.StatusOK)
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "zones/form", "New zone", map[string]any{
		"Form":   ZoneInput{IsActive: true},
		"Errors": formErrors{},
		"Action": "/zones",
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in := formInput(r)
	zone, err := h.service.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create zone", slog.Any("error", err))
		h.render(w, r, "zones/form", "New zone", map[string]any{
			"Form":   in,
			"Errors": formErrors(shared.FieldErrors(err)),
			"Action": "/zones",
		}, statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/zones/"+strconv.FormatInt(zone.ID, 10), "success", "Zone created")
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	zone, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "zones/form", "Edit zone", map[string]any{
		"Form":   ZoneInput{Code: zone.Code, Name: zone.Name, Description: zone.Description, IsActive: zone.IsActive},
		"Errors": formErrors{},
		"Action": "/zones/" + strconv.FormatInt(id, 10) + "/edit",
		"Zone":   zone,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in := formInput(r)
	if _, err := h.service.Update(r.Context(), orgID, userID, id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.render(w, r, "zones/form", "Edit zone", map[string]any{
			"Form":   in,
			"Errors": formErrors(shared.FieldErrors(err)),
			"Action": "/zones/" + strconv.FormatInt(id, 10) + "/edit",
		}, statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/zones/"+strconv.FormatInt(id, 10), "success", "Zone updated")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.Delete(r.Context(), orgID, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.redirectWithFlash(w, r, "/zones/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/zones", "success", "Zone deleted")
}

func formInput(r *http.Request) ZoneInput {
	return ZoneInput{
		Code:        r.PostFormValue("code"),
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
		IsActive:    r.PostFormValue("is_active") == "true",
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrAlreadyExists) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func withAmp(encoded string) string {
	if encoded == "" {
		return ""
	}
	return encoded + "&"
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid zone ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Zone not found", http.StatusNotFound)
		return
	}
	h.logger.Error("zone request", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, page, viewData); err != nil {
		h.logger.Error("template render failed", slog.Any("error", err), slog.String("template", page))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
