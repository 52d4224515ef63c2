package revenue

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/services"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// ServiceOptions lists catalog entries for the expense form.
type ServiceOptions interface {
	Options(ctx context.Context, orgID int64) ([]services.Service, error)
}

// Handler serves the revenue pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   ServiceOptions
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, catalog ServiceOptions, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, catalog: catalog, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers revenue routes under /revenue.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(shared.PermRevenueView))
	r.Get("/", h.Index)
	r.Get("/export.xlsx", h.Export)
	r.Get("/transactions", h.Transactions)
	r.Post("/transactions", h.CreateTransaction)
	r.Post("/transactions/{id:[0-9]+}/delete", h.DeleteTransaction)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	rng, g := h.rangeFromQuery(r.URL.Query())
	report, err := h.service.Report(r.Context(), orgID, rng, g)
	if err != nil {
		h.logger.Error("revenue report", slog.Any("error", err))
		http.Error(w, "Failed to load revenue", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "revenue/index", "Revenue", map[string]any{
		"Report":        report,
		"Granularity":   string(g),
		"Granularities": []Granularity{Week, Month, Quarter, Year},
		"Sources":       Sources(),
		"ExportQuery":   exportQuery(rng, g),
	}, http.StatusOK)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	rng, g := h.rangeFromQuery(r.URL.Query())
	data, err := h.service.Export(r.Context(), orgID, rng, g)
	if err != nil {
		h.logger.Error("revenue export", slog.Any("error", err))
		http.Error(w, "Failed to export revenue", http.StatusInternalServerError)
		return
	}
	name := "revenue-" + rng.From.Format("20060102") + "-" + rng.To.Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	h.renderTransactions(w, r, TransactionInput{Kind: KindExpense, Source: SourceService, OccurredOn: time.Now()}, formErrors{}, http.StatusOK)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in, errs := transactionInput(r)
	if len(errs) > 0 {
		h.renderTransactions(w, r, in, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.CreateTransaction(r.Context(), orgID, userID, in); err != nil {
		h.logger.Warn("create transaction", slog.Any("error", err))
		h.renderTransactions(w, r, in, shared.FieldErrors(err), http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/revenue/transactions", "success", "Transaction recorded")
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.DeleteTransaction(r.Context(), orgID, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		h.redirectWithFlash(w, r, "/revenue/transactions", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/revenue/transactions", "success", "Transaction deleted")
}

type formErrors map[string]string

func (h *Handler) renderTransactions(w http.ResponseWriter, r *http.Request, in TransactionInput, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	req := ListTransactionsRequest{
		OrganizationID: orgID,
		Kind:           Kind(strings.ToUpper(q.Get("kind"))),
		Source:         Source(strings.ToUpper(q.Get("source"))),
		Limit:          shared.DefaultPerPage,
		Offset:         (page - 1) * shared.DefaultPerPage,
	}
	txs, total, err := h.service.ListTransactions(r.Context(), req)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		http.Error(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}
	catalog, err := h.catalog.Options(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load service options", slog.Any("error", err))
	}
	base := url.Values{}
	if req.Kind != "" {
		base.Set("kind", string(req.Kind))
	}
	if req.Source != "" {
		base.Set("source", string(req.Source))
	}
	pageBase := "/revenue/transactions?"
	if enc := base.Encode(); enc != "" {
		pageBase += enc + "&"
	}
	h.render(w, r, "revenue/transactions", "Transactions", map[string]any{
		"Transactions": txs,
		"Form":         in,
		"Errors":       errs,
		"Services":     catalog,
		"Kind":         string(req.Kind),
		"Source":       string(req.Source),
		"Sources":      Sources(),
		"Pagination":   shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":     pageBase,
	}, status)
}

func transactionInput(r *http.Request) (TransactionInput, formErrors) {
	errs := formErrors{}
	in := TransactionInput{
		Kind:        Kind(strings.ToUpper(r.PostFormValue("kind"))),
		Source:      Source(strings.ToUpper(r.PostFormValue("source"))),
		Description: r.PostFormValue("description"),
	}
	amount, err := shared.ParseMoney(r.PostFormValue("amount"))
	if err != nil {
		errs["Amount"] = "Invalid value"
	}
	in.Amount = amount
	if raw := strings.TrimSpace(r.PostFormValue("occurred_on")); raw != "" {
		on, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			errs["OccurredOn"] = "Invalid value"
		}
		in.OccurredOn = on
	}
	if id, err := strconv.ParseInt(r.PostFormValue("service_id"), 10, 64); err == nil && id > 0 {
		in.ServiceID = &id
	}
	return in, errs
}

// rangeFromQuery reads from/to/granularity and defaults to the current month.
func (h *Handler) rangeFromQuery(q url.Values) (Range, Granularity) {
	rng := h.service.CurrentMonth()
	if from, err := time.Parse(time.DateOnly, q.Get("from")); err == nil {
		rng.From = from
	}
	if to, err := time.Parse(time.DateOnly, q.Get("to")); err == nil {
		rng.To = to
	}
	if rng.To.Before(rng.From) {
		rng.From, rng.To = rng.To, rng.From
	}
	return rng, ParseGranularity(q.Get("granularity"))
}

func exportQuery(rng Range, g Granularity) string {
	return url.Values{
		"from":        {rng.From.Format(time.DateOnly)},
		"to":          {rng.To.Format(time.DateOnly)},
		"granularity": {string(g)},
	}.Encode()
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
