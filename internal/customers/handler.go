package customers

import (
	"context"
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
	"github.com/motorcrm/motorcrm/internal/zones"
)

// ZoneOptions lists zones for the zone select box.
type ZoneOptions interface {
	Options(ctx context.Context, orgID int64) ([]zones.Zone, error)
}

// Handler serves the customer pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	zones     ZoneOptions
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, zones ZoneOptions, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, zones: zones, templates: templates, csrf: csrf, rbac: rbac}
}

type formErrors map[string]string

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	page := shared.PageFromQuery(q)
	req := ListCustomersRequest{OrganizationID: orgID, Search: search, Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage}
	if zoneID, err := strconv.ParseInt(q.Get("zone_id"), 10, 64); err == nil && zoneID > 0 {
		req.ZoneID = &zoneID
	}
	customers, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		http.Error(w, "Failed to load customers", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if req.ZoneID != nil {
		base.Set("zone_id", q.Get("zone_id"))
	}
	zoneList, _ := h.zones.Options(r.Context(), orgID)
	h.render(w, r, "customers/index", "Customers", map[string]any{
		"Customers":  customers,
		"Search":     search,
		"ZoneID":     q.Get("zone_id"),
		"Zones":      zoneList,
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/customers?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	customer, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "customers/show", customer.FullName, map[string]any{"Customer": customer}, http.StatusOK)
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	code, err := h.service.SuggestCode(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("suggest customer code", slog.Any("error", err))
	}
	h.renderForm(w, r, "New customer", "/customers", CustomerInput{Code: code, IsActive: true}, formErrors{}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in := formInput(r)
	customer, err := h.service.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create customer", slog.Any("error", err))
		h.renderForm(w, r, "New customer", "/customers", in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/customers/"+strconv.FormatInt(customer.ID, 10), "success", "Customer created")
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	in := CustomerInput{
		Code: c.Code, FullName: c.FullName, Email: c.Email, Phone: c.Phone, NationalID: c.NationalID,
		Address: c.Address, ZoneID: c.ZoneID, Notes: c.Notes, IsActive: c.IsActive,
	}
	h.renderForm(w, r, "Edit customer", "/customers/"+strconv.FormatInt(id, 10)+"/edit", in, formErrors{}, http.StatusOK)
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
		h.renderForm(w, r, "Edit customer", "/customers/"+strconv.FormatInt(id, 10)+"/edit", in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/customers/"+strconv.FormatInt(id, 10), "success", "Customer updated")
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
		h.redirectWithFlash(w, r, "/customers/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/customers", "success", "Customer deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, in CustomerInput, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	zoneList, err := h.zones.Options(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load zone options", slog.Any("error", err))
	}
	h.render(w, r, "customers/form", title, map[string]any{
		"Form":   in,
		"Errors": errs,
		"Action": action,
		"Zones":  zoneList,
	}, status)
}

func formInput(r *http.Request) CustomerInput {
	in := CustomerInput{
		Code:       r.PostFormValue("code"),
		FullName:   r.PostFormValue("full_name"),
		Email:      shared.OptionalString(r.PostFormValue("email")),
		Phone:      shared.OptionalString(r.PostFormValue("phone")),
		NationalID: shared.OptionalString(r.PostFormValue("national_id")),
		Address:    shared.OptionalString(r.PostFormValue("address")),
		Notes:      shared.OptionalString(r.PostFormValue("notes")),
		IsActive:   r.PostFormValue("is_active") == "true",
	}
	if zoneID, err := strconv.ParseInt(r.PostFormValue("zone_id"), 10, 64); err == nil && zoneID > 0 {
		in.ZoneID = &zoneID
	}
	return in
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
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Customer not found", http.StatusNotFound)
		return
	}
	h.logger.Error("customer request", slog.Any("error", err))
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
