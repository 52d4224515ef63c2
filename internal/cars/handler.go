package cars

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

// Handler serves the car stock pages.
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
	status := Status(strings.ToUpper(q.Get("status")))
	page := shared.PageFromQuery(q)
	req := ListCarsRequest{OrganizationID: orgID, Search: search, Status: status, Limit: shared.DefaultPerPage, Offset: (page - 1) * shared.DefaultPerPage}
	cars, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list cars", slog.Any("error", err))
		http.Error(w, "Failed to load cars", http.StatusInternalServerError)
		return
	}
	base := url.Values{}
	if search != "" {
		base.Set("q", search)
	}
	if status != "" {
		base.Set("status", string(status))
	}
	h.render(w, r, "cars/index", "Cars", map[string]any{
		"Cars":       cars,
		"Search":     search,
		"Status":     string(status),
		"Statuses":   Statuses(),
		"Pagination": shared.NewPagination(page, shared.DefaultPerPage, total),
		"PageBase":   "/cars?" + withAmp(base.Encode()),
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	car, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.render(w, r, "cars/show", car.Make+" "+car.Model, map[string]any{"Car": car}, http.StatusOK)
}

func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "New car", "/cars", CarInput{Status: StatusAvailable, Year: h.service.now().Year()}, formErrors{}, http.StatusOK)
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
		h.renderForm(w, r, "New car", "/cars", in, errs, http.StatusBadRequest)
		return
	}
	car, err := h.service.Create(r.Context(), orgID, userID, in)
	if err != nil {
		h.logger.Warn("create car", slog.Any("error", err))
		h.renderForm(w, r, "New car", "/cars", in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/cars/"+strconv.FormatInt(car.ID, 10), "success", "Car created")
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
	in := CarInput{
		VIN: c.VIN, Make: c.Make, Model: c.Model, Year: c.Year, Color: c.Color, Mileage: c.Mileage,
		Price: c.Price, Status: c.Status, ZoneID: c.ZoneID, Notes: c.Notes,
	}
	h.renderForm(w, r, "Edit car", "/cars/"+strconv.FormatInt(id, 10)+"/edit", in, formErrors{}, http.StatusOK)
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
	action := "/cars/" + strconv.FormatInt(id, 10) + "/edit"
	in, errs := formInput(r)
	if len(errs) > 0 {
		h.renderForm(w, r, "Edit car", action, in, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), orgID, userID, id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFoundOrError(w, err)
			return
		}
		h.renderForm(w, r, "Edit car", action, in, shared.FieldErrors(err), statusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/cars/"+strconv.FormatInt(id, 10), "success", "Car updated")
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
		h.redirectWithFlash(w, r, "/cars/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/cars", "success", "Car deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, in CarInput, errs formErrors, status int) {
	orgID, _ := shared.CurrentOrgID(r.Context())
	zoneList, err := h.zones.Options(r.Context(), orgID)
	if err != nil {
		h.logger.Warn("load zone options", slog.Any("error", err))
	}
	statuses := []Status{StatusAvailable, StatusMaintenance}
	if !ManualTransitionAllowed(StatusAvailable, in.Status) {
		statuses = []Status{in.Status}
	}
	h.render(w, r, "cars/form", title, map[string]any{
		"Form":     in,
		"Errors":   errs,
		"Action":   action,
		"Zones":    zoneList,
		"Statuses": statuses,
	}, status)
}

// formInput parses the form. Number parse failures are reported per field.
func formInput(r *http.Request) (CarInput, formErrors) {
	errs := formErrors{}
	in := CarInput{
		VIN:    r.PostFormValue("vin"),
		Make:   r.PostFormValue("make"),
		Model:  r.PostFormValue("model"),
		Color:  shared.OptionalString(r.PostFormValue("color")),
		Status: Status(strings.ToUpper(r.PostFormValue("status"))),
		Notes:  shared.OptionalString(r.PostFormValue("notes")),
	}
	if raw := strings.TrimSpace(r.PostFormValue("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			errs["Year"] = "Invalid value"
		}
		in.Year = year
	}
	if raw := strings.TrimSpace(r.PostFormValue("mileage")); raw != "" {
		mileage, err := strconv.Atoi(raw)
		if err != nil {
			errs["Mileage"] = "Invalid value"
		}
		in.Mileage = mileage
	}
	price, err := shared.ParseMoney(r.PostFormValue("price"))
	if err != nil {
		errs["Price"] = "Invalid value"
	}
	in.Price = price
	if zoneID, err := strconv.ParseInt(r.PostFormValue("zone_id"), 10, 64); err == nil && zoneID > 0 {
		in.ZoneID = &zoneID
	}
	return in, errs
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
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
		http.Error(w, "Invalid car ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Car not found", http.StatusNotFound)
		return
	}
	h.logger.Error("car request", slog.Any("error", err))
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
