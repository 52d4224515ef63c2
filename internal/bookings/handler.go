package bookings

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

const dateLayout = "2006-01-02"

// blankLines is how many empty service rows the form offers.
const blankLines = 3

// Handler serves the staff booking pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	workflow  *Workflow
	lookups   Lookups
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, workflow *Workflow, lookups Lookups, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, workflow: workflow, lookups: lookups, templates: templates, csrf: csrf, rbac: rbac}
}

type formErrors map[string]string

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	status := Status(strings.ToUpper(q.Get("status")))
	page := shared.PageFromQuery(q)
	bookings, total, err := h.service.List(r.Context(), ListBookingsRequest{
		OrganizationID: orgID, Search: search, Status: status,
		Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage,
	})
	if err != nil {
		h.logger.Error("list bookings", slog.Any("error", err))
		http.Error(w, "Failed to load bookings", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if status != "" {
		base.Set("status", string(status))
	}
	h.render(w, r, "bookings/index", "Bookings", map[string]any{
		"Bookings":   bookings,
		"Search":     search,
		"Status":     string(status),
		"Statuses":   Statuses(),
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/bookings?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	booking, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	var serviceList any
	if booking.LinesEditable() {
		list, err := h.lookups.Services(r.Context(), orgID)
		if err != nil {
			h.logger.Warn("load service options", slog.Any("error", err))
		}
		serviceList = list
	}
	h.render(w, r, "bookings/show", booking.DocNumber, map[string]any{
		"Booking":    booking,
		"Acceptance": booking.Acceptance(),
		"Services":   serviceList,
		"CanSend":    canSend(booking),
		"CanCancel":  !booking.Status.Final(),
	}, http.StatusOK)
}

func canSend(b *Booking) bool {
	acc := b.Acceptance()
	switch b.Status {
	case StatusDraft, StatusNeedsAttention, StatusRequested:
		return acc.Pending > 0 && acc.Declined == 0
	}
	return false
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	in := BookingInput{Pax: 1}
	if customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); err == nil {
		in.CustomerID = customerID
	}
	h.renderForm(w, r, "New booking", "/bookings", in, formErrors{}, http.StatusOK)
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
		h.renderForm(w, r, "New booking", "/bookings", in, errs, http.StatusBadRequest)
		return
	}
	booking, err := h.service.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create booking", slog.Any("error", err))
		h.renderForm(w, r, "New booking", "/bookings", in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, bookingPath(booking.ID), "success", "Booking "+booking.DocNumber+" created")
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	booking, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if !booking.Editable() {
		h.redirectWithFlash(w, r, bookingPath(id), "error", "Only draft bookings can be edited")
		return
	}
	in := BookingInput{
		CustomerID: booking.CustomerID, TripStart: booking.TripStart, TripEnd: booking.TripEnd,
		Pax: booking.Pax, Notes: booking.Notes,
	}
	for _, l := range booking.Services {
		in.Lines = append(in.Lines, LineInput{ServiceID: l.ServiceID, Quantity: l.Quantity})
	}
	h.renderForm(w, r, "Edit "+booking.DocNumber, bookingPath(id)+"/edit", in, formErrors{}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	action := bookingPath(id) + "/edit"
	in, errs := formInput(r)
	if len(errs) > 0 {
		h.renderForm(w, r, "Edit booking", action, in, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), orgID, userID, id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.renderForm(w, r, "Edit booking", action, in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", "Booking updated")
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	sent, err := h.workflow.SendRequests(r.Context(), orgID, userID, id)
	if err != nil && sent == 0 {
		h.actionFailed(w, r, id, err)
		return
	}
	if err != nil {
		h.redirectWithFlash(w, r, bookingPath(id), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", strconv.Itoa(sent)+" request(s) sent to providers")
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	if err := h.workflow.Cancel(r.Context(), orgID, userID, id); err != nil {
		h.actionFailed(w, r, id, err)
		return
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", "Booking cancelled")
}

func (h *Handler) AddService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	in := LineInput{Quantity: 1}
	in.ServiceID, _ = strconv.ParseInt(r.PostFormValue("service_id"), 10, 64)
	if qty, err := strconv.Atoi(r.PostFormValue("quantity")); err == nil {
		in.Quantity = qty
	}
	if _, err := h.service.AddLine(r.Context(), orgID, userID, id, in); err != nil {
		h.actionFailed(w, r, id, err)
		return
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", "Service added")
}

func (h *Handler) RemoveService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := parseID(w, r, "sid")
	if !ok {
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	booking, err := h.workflow.RemoveLine(r.Context(), orgID, userID, id, lineID)
	if err != nil {
		h.actionFailed(w, r, id, err)
		return
	}
	message := "Service removed"
	if booking.Status == StatusConfirmed {
		message = "Service removed, booking confirmed"
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", message)
}

// RespondService records a decision on behalf of a provider, e.g. after a phone call.
func (h *Handler) RespondService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := parseID(w, r, "sid")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	userID, _ := shared.CurrentUserID(r.Context())
	booking, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if !hasLine(booking, lineID) {
		http.Error(w, "Service line not found", http.StatusNotFound)
		return
	}
	in := RespondInput{Decision: Decision(r.PostFormValue("decision")), Note: r.PostFormValue("note")}
	res, err := h.workflow.Respond(r.Context(), orgID, lineID, in, Actor{UserID: userID})
	if err != nil {
		h.actionFailed(w, r, id, err)
		return
	}
	h.redirectWithFlash(w, r, bookingPath(id), "success", respondMessage(res))
}

func respondMessage(res *RespondResult) string {
	switch res.Status {
	case StatusConfirmed:
		return "All services accepted, booking confirmed"
	case StatusNeedsAttention:
		return "All services answered, booking needs attention"
	}
	return "Answer recorded, " + strconv.Itoa(res.Acceptance.Pending) + " service(s) pending"
}

func hasLine(b *Booking, lineID int64) bool {
	for _, l := range b.Services {
		if l.ID == lineID {
			return true
		}
	}
	return false
}

// Invoice streams the invoice PDF. ?lang= overrides the organization locale.
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
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
	pdf, filename, err := h.service.Invoice(r.Context(), orgID, id, locale)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.notFoundOrError(w, err)
		case errors.Is(err, ErrInvalidState):
			h.redirectWithFlash(w, r, bookingPath(id), "error", shared.UserSafeMessage(err))
		case errors.Is(err, documents.ErrRenderFailed):
			h.logger.Error("render invoice", slog.Any("error", err), slog.Int64("booking_id", id))
			http.Error(w, "PDF service unavailable", http.StatusBadGateway)
		default:
			h.notFoundOrError(w, err)
		}
		return
	}
	documents.WritePDF(w, filename, pdf)
}

func (h *Handler) actionFailed(w http.ResponseWriter, r *http.Request, id int64, err error) {
	if errors.Is(err, ErrNotFound) && !strings.Contains(err.Error(), "service line") {
		h.notFoundOrError(w, err)
		return
	}
	if statusFor(err) == http.StatusBadRequest {
		h.logger.Warn("booking action", slog.Any("error", err), slog.Int64("booking_id", id))
	}
	h.redirectWithFlash(w, r, bookingPath(id), "error", shared.UserSafeMessage(err))
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, in BookingInput, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	customerList, err := h.lookups.Customers(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load customer options", slog.Any("error", err))
	}
	serviceList, err := h.lookups.Services(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load service options", slog.Any("error", err))
	}
	rows := append([]LineInput{}, in.Lines...)
	for i := 0; i < blankLines; i++ {
		rows = append(rows, LineInput{Quantity: 1})
	}
	h.render(w, r, "bookings/form", title, map[string]any{
		"Form":      in,
		"TripStart": formatInputDate(in.TripStart),
		"TripEnd":   formatInputDate(in.TripEnd),
		"Rows":      rows,
		"Errors":    errs,
		"Action":    action,
		"Customers": customerList,
		"Services":  serviceList,
	}, status)
}

func formatInputDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// formInput parses the booking form. Service rows are parallel service_id and
// quantity fields; rows without a service are ignored.
func formInput(r *http.Request) (BookingInput, formErrors) {
	errs := formErrors{}
	in := BookingInput{Notes: shared.OptionalString(r.PostFormValue("notes"))}
	in.CustomerID, _ = strconv.ParseInt(r.PostFormValue("customer_id"), 10, 64)
	if raw := strings.TrimSpace(r.PostFormValue("trip_start")); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			errs["TripStart"] = "Invalid date"
		}
		in.TripStart = t
	}
	if raw := strings.TrimSpace(r.PostFormValue("trip_end")); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			errs["TripEnd"] = "Invalid date"
		}
		in.TripEnd = t
	}
	if raw := strings.TrimSpace(r.PostFormValue("pax")); raw != "" {
		pax, err := strconv.Atoi(raw)
		if err != nil {
			errs["Pax"] = "Invalid value"
		}
		in.Pax = pax
	}
	ids := r.PostForm["service_id"]
	qtys := r.PostForm["quantity"]
	for i, raw := range ids {
		serviceID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || serviceID <= 0 {
			continue
		}
		qty := 1
		if i < len(qtys) {
			if q, err := strconv.Atoi(strings.TrimSpace(qtys[i])); err == nil {
				qty = q
			} else {
				errs["Lines"] = "Invalid quantity"
			}
		}
		in.Lines = append(in.Lines, LineInput{ServiceID: serviceID, Quantity: qty})
	}
	return in, errs
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAlreadyResponded), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func bookingPath(id int64) string {
	return "/bookings/" + strconv.FormatInt(id, 10)
}

func withAmp(encoded string) string {
	if encoded == "" {
		return ""
	}
	return encoded + "&"
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	h.logger.Error("booking request", slog.Any("error", err))
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
