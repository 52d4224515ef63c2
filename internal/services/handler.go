package services

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

// Handler serves the service catalog pages.
type Handler struct {
	logger    *slog.Logger
	catalog   *Catalog
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, catalog *Catalog, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, catalog: catalog, templates: templates, csrf: csrf, rbac: rbac}
}

type formErrors map[string]string

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	category := Category(strings.ToUpper(q.Get("category")))
	page := shared.PageFromQuery(q)
	items, total, err := h.catalog.List(r.Context(), ListServicesRequest{
		OrganizationID: orgID, Search: search, Category: category,
		Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage,
	})
	if err != nil {
		h.logger.Error("list services", slog.Any("error", err))
		http.Error(w, "Failed to load services", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if category != "" {
		base.Set("category", string(category))
	}
	h.render(w, r, "services/index", "Services", map[string]any{
		"Services":   items,
		"Search":     search,
		"Category":   string(category),
		"Categories": Categories(),
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/services?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s, err := h.catalog.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "services/show", s.Name, map[string]any{"Service": s}, http.StatusOK)
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "New service", "/services", ServiceInput{Category: CategoryHotel, IsActive: true}, formErrors{}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in, errs := formInput(r)
	if len(errs) > 0 {
		h.renderForm(w, r, "New service", "/services", in, errs, http.StatusBadRequest)
		return
	}
	s, err := h.catalog.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create service", slog.Any("error", err))
		h.renderForm(w, r, "New service", "/services", in, shared.FieldErrors(err), http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/services/"+strconv.FormatInt(s.ID, 10), "success", "Service created")
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s, err := h.catalog.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	in := ServiceInput{
		Name: s.Name, Category: s.Category, ProviderName: s.ProviderName, ProviderEmail: s.ProviderEmail,
		UnitPrice: s.UnitPrice, UnitCost: s.UnitCost, IsActive: s.IsActive,
	}
	h.renderForm(w, r, "Edit service", "/services/"+strconv.FormatInt(id, 10)+"/edit", in, formErrors{}, http.StatusOK)
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
	action := "/services/" + strconv.FormatInt(id, 10) + "/edit"
	in, errs := formInput(r)
	if len(errs) > 0 {
		h.renderForm(w, r, "Edit service", action, in, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.catalog.Update(r.Context(), orgID, userID, id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.renderForm(w, r, "Edit service", action, in, shared.FieldErrors(err), http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/services/"+strconv.FormatInt(id, 10), "success", "Service updated")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	if err := h.catalog.Delete(r.Context(), orgID, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.redirectWithFlash(w, r, "/services/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/services", "success", "Service deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, in ServiceInput, errs formErrors, status int) {
	h.render(w, r, "services/form", title, map[string]any{
		"Form":       in,
		"Errors":     errs,
		"Action":     action,
		"Categories": Categories(),
	}, status)
}

func formInput(r *http.Request) (ServiceInput, formErrors) {
	errs := formErrors{}
	in := ServiceInput{
		Name:          r.PostFormValue("name"),
		Category:      Category(strings.ToUpper(r.PostFormValue("category"))),
		ProviderName:  r.PostFormValue("provider_name"),
		ProviderEmail: r.PostFormValue("provider_email"),
		IsActive:      r.PostFormValue("is_active") == "true",
	}
	var err error
	if in.UnitPrice, err = shared.ParseMoney(r.PostFormValue("unit_price")); err != nil {
		errs["UnitPrice"] = "Invalid value"
	}
	if in.UnitCost, err = shared.ParseMoney(r.PostFormValue("unit_cost")); err != nil {
		errs["UnitCost"] = "Invalid value"
	}
	return in, errs
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
		http.Error(w, "Invalid service ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}
	h.logger.Error("service request", slog.Any("error", err))
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
