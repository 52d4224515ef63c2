package deals

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/cars"
	"github.com/motorcrm/motorcrm/internal/customers"
	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
	"github.com/motorcrm/motorcrm/internal/zones"
)

// Lookups feeds the select boxes of the deal form.
type Lookups interface {
	Customers(ctx context.Context, orgID int64) ([]customers.Customer, error)
	AvailableCars(ctx context.Context, orgID int64) ([]cars.Car, error)
	Zones(ctx context.Context, orgID int64) ([]zones.Zone, error)
}

// Handler serves the deal pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	lookups   Lookups
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, lookups Lookups, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, lookups: lookups, templates: templates, csrf: csrf, rbac: rbac}
}

type formErrors map[string]string

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	status := Status(strings.ToUpper(q.Get("status")))
	page := shared.PageFromQuery(q)
	deals, total, err := h.service.List(r.Context(), ListDealsRequest{
		OrganizationID: orgID, Search: search, Status: status,
		Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage,
	})
	if err != nil {
		h.logger.Error("list deals", slog.Any("error", err))
		http.Error(w, "Failed to load deals", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if status != "" {
		base.Set("status", string(status))
	}
	h.render(w, r, "deals/index", "Deals", map[string]any{
		"Deals":      deals,
		"Search":     search,
		"Status":     string(status),
		"Statuses":   Statuses(),
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/deals?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	deal, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "deals/show", deal.DocNumber, map[string]any{
		"Deal":        deal,
		"CanSign":     CanTransition(deal.Status, StatusSigned),
		"CanComplete": CanTransition(deal.Status, StatusCompleted),
		"CanCancel":   CanTransition(deal.Status, StatusCancelled),
	}, http.StatusOK)
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	in := DealInput{}
	if carID, err := strconv.ParseInt(r.URL.Query().Get("car_id"), 10, 64); err == nil {
		in.CarID = carID
	}
	if customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); err == nil {
		in.CustomerID = customerID
	}
	h.renderForm(w, r, "New deal", "/deals", in, nil, formErrors{}, http.StatusOK)
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
		h.renderForm(w, r, "New deal", "/deals", in, nil, errs, http.StatusBadRequest)
		return
	}
	deal, err := h.service.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create deal", slog.Any("error", err))
		h.renderForm(w, r, "New deal", "/deals", in, nil, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/deals/"+strconv.FormatInt(deal.ID, 10), "success", "Deal "+deal.DocNumber+" created")
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	deal, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if !deal.Editable() {
		h.redirectWithFlash(w, r, "/deals/"+strconv.FormatInt(id, 10), "error", "Only draft deals can be edited")
		return
	}
	in := DealInput{
		CustomerID: deal.CustomerID, CarID: deal.CarID, ZoneID: deal.ZoneID,
		SalePrice: deal.SalePrice, DownPayment: deal.DownPayment, Terms: deal.Terms,
	}
	h.renderForm(w, r, "Edit "+deal.DocNumber, "/deals/"+strconv.FormatInt(id, 10)+"/edit", in, deal, formErrors{}, http.StatusOK)
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
	current, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	action := "/deals/" + strconv.FormatInt(id, 10) + "/edit"
	in, errs := formInput(r)
	in.CarID = current.CarID
	if len(errs) > 0 {
		h.renderForm(w, r, "Edit "+current.DocNumber, action, in, current, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), orgID, userID, id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.renderForm(w, r, "Edit "+current.DocNumber, action, in, current, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/deals/"+strconv.FormatInt(id, 10), "success", "Deal updated")
}

func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Sign, "Deal signed")
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete, "Deal completed")
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel, "Deal cancelled")
}

type transitionFunc func(ctx context.Context, orgID, actorID, id int64) (*Deal, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, success string) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	target := "/deals/" + strconv.FormatInt(id, 10)
	if _, err := fn(r.Context(), orgID, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		if !IsConflict(err) {
			h.logger.Error("deal transition", slog.Any("error", err), slog.Int64("deal_id", id))
		}
		h.redirectWithFlash(w, r, target, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, target, "success", success)
}

// Contract streams the contract PDF. ?lang= overrides the organization locale.
func (h *Handler) Contract(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	locale := language.Und
	if raw := r.URL.Query().Get("lang"); raw != "" {
		if tag, err := language.Parse(raw); err == nil {
			locale = tag
		}
	}
	pdf, filename, err := h.service.Contract(r.Context(), orgID, id, locale)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.notFoundOrError(w, err)
		case errors.Is(err, documents.ErrRenderFailed):
			h.logger.Error("render contract", slog.Any("error", err), slog.Int64("deal_id", id))
			http.Error(w, "PDF service unavailable", http.StatusBadGateway)
		default:
			h.notFoundOrError(w, err)
		}
		return
	}
	documents.WritePDF(w, filename, pdf)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, in DealInput, deal *Deal, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	customerList, err := h.lookups.Customers(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load customer options", slog.Any("error", err))
	}
	zoneList, err := h.lookups.Zones(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load zone options", slog.Any("error", err))
	}
	var carList []cars.Car
	if deal == nil {
		carList, err = h.lookups.AvailableCars(r.Context(), orgID)
		if err != nil {
			h.logger.Warn("load car options", slog.Any("error", err))
		}
	}
	h.render(w, r, "deals/form", title, map[string]any{
		"Form":      in,
		"Deal":      deal,
		"Errors":    errs,
		"Action":    action,
		"Customers": customerList,
		"Cars":      carList,
		"Zones":     zoneList,
	}, status)
}

func formInput(r *http.Request) (DealInput, formErrors) {
	errs := formErrors{}
	in := DealInput{Terms: r.PostFormValue("terms")}
	if v, err := strconv.ParseInt(r.PostFormValue("customer_id"), 10, 64); err == nil {
		in.CustomerID = v
	}
	if v, err := strconv.ParseInt(r.PostFormValue("car_id"), 10, 64); err == nil {
		in.CarID = v
	}
	if v, err := strconv.ParseInt(r.PostFormValue("zone_id"), 10, 64); err == nil && v > 0 {
		in.ZoneID = &v
	}
	price, err := shared.ParseMoney(r.PostFormValue("sale_price"))
	if err != nil {
		errs["SalePrice"] = "Invalid value"
	}
	in.SalePrice = price
	down, err := shared.ParseMoney(r.PostFormValue("down_payment"))
	if err != nil {
		errs["DownPayment"] = "Invalid value"
	}
	in.DownPayment = down
	return in, errs
}

func statusFor(err error) int {
	if IsConflict(err) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusUnprocessableEntity
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
		http.Error(w, "Invalid deal ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}
	h.logger.Error("deal request", slog.Any("error", err))
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
