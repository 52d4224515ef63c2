package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/motorcrm/motorcrm/internal/platform/httpx"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/view"
)

// Granter checks a single permission of a user.
type Granter interface {
	Grants(ctx context.Context, userID int64, perm string) (bool, error)
}

// RespondHandler serves the provider answer surfaces: the JSON API and the public
// page behind emailed links.
type RespondHandler struct {
	logger    *slog.Logger
	service   *Service
	workflow  *Workflow
	grants    Granter
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewRespondHandler constructs a RespondHandler.
func NewRespondHandler(logger *slog.Logger, service *Service, workflow *Workflow, grants Granter, templates *view.Engine, csrf *shared.CSRFManager) *RespondHandler {
	return &RespondHandler{logger: logger, service: service, workflow: workflow, grants: grants, templates: templates, csrf: csrf}
}

// MountAPI registers POST /booking-services/{id}/respond.
func (h *RespondHandler) MountAPI(r chi.Router) {
	r.Post("/booking-services/{id:[0-9]+}/respond", h.API)
}

// MountPage registers the public /respond/{token} page.
func (h *RespondHandler) MountPage(r chi.Router) {
	r.Get("/{token}", h.Page)
	r.Post("/{token}", h.Submit)
}

// API records a decision posted as JSON. The caller is either a provider holding a
// respond token for this line or a signed-in user with bookings.respond.
func (h *RespondHandler) API(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || lineID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid booking service id")
		return
	}
	orgID, actor, err := h.authorize(r, lineID)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrUnauthorized) {
			h.logger.Error("authorize respond", slog.Any("error", err))
		}
		httpx.RespondError(w, err, respondStatus)
		return
	}
	var in RespondInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.workflow.Respond(r.Context(), orgID, lineID, in, actor)
	if err != nil {
		if respondCode(err) == 0 {
			h.logger.Error("respond", slog.Any("error", err), slog.Int64("line_id", lineID))
		}
		httpx.RespondError(w, err, respondStatus)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *RespondHandler) authorize(r *http.Request, lineID int64) (int64, Actor, error) {
	if raw, ok := bearerToken(r); ok {
		claims, err := h.workflow.Tokens().Parse(raw)
		if err != nil {
			return 0, Actor{}, err
		}
		if claims.BookingServiceID != lineID {
			return 0, Actor{}, fmt.Errorf("%w: token does not cover booking service %d", httpx.ErrForbidden, lineID)
		}
		return claims.OrganizationID, Actor{}, nil
	}
	userID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		return 0, Actor{}, fmt.Errorf("%w: respond token or session required", httpx.ErrUnauthorized)
	}
	orgID, _ := shared.CurrentOrgID(r.Context())
	granted, err := h.grants.Grants(r.Context(), userID, shared.PermBookingsRespond)
	if err != nil {
		return 0, Actor{}, fmt.Errorf("load permissions: %w", err)
	}
	if !granted {
		return 0, Actor{}, fmt.Errorf("%w: missing %s", httpx.ErrForbidden, shared.PermBookingsRespond)
	}
	return orgID, Actor{UserID: userID}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondStatus(err error) (int, bool) {
	code := respondCode(err)
	return code, code != 0
}

func respondCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyResponded), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.As(err, &verrs), errors.Is(err, httpx.ErrValidation):
		return http.StatusBadRequest
	}
	return 0
}

// Page shows the accept/decline form of a respond link.
func (h *RespondHandler) Page(w http.ResponseWriter, r *http.Request) {
	claims, err := h.workflow.Tokens().Parse(chi.URLParam(r, "token"))
	if err != nil {
		h.renderPage(w, r, "expired", nil, nil, http.StatusNotFound)
		return
	}
	booking, line, err := h.lookup(r.Context(), claims)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.renderPage(w, r, "expired", nil, nil, http.StatusNotFound)
			return
		}
		h.logger.Error("load respond page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	state := "form"
	switch {
	case line.Status != LinePending:
		state = "already"
	case booking.Status != StatusRequested:
		state = "closed"
	}
	h.renderPage(w, r, state, booking, line, http.StatusOK)
}

// Submit records the decision posted from the public page.
func (h *RespondHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, err := h.workflow.Tokens().Parse(chi.URLParam(r, "token"))
	if err != nil {
		h.renderPage(w, r, "expired", nil, nil, http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in := RespondInput{Decision: Decision(r.PostFormValue("decision")), Note: r.PostFormValue("note")}
	_, respondErr := h.workflow.Respond(r.Context(), claims.OrganizationID, claims.BookingServiceID, in, Actor{})
	booking, line, err := h.lookup(r.Context(), claims)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.renderPage(w, r, "expired", nil, nil, http.StatusNotFound)
			return
		}
		h.logger.Error("load respond page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	switch {
	case respondErr == nil:
		h.renderPage(w, r, "thanks", booking, line, http.StatusOK)
	case errors.Is(respondErr, ErrAlreadyResponded):
		h.renderPage(w, r, "already", booking, line, http.StatusConflict)
	case errors.Is(respondErr, ErrInvalidState):
		h.renderPage(w, r, "closed", booking, line, http.StatusConflict)
	case respondCode(respondErr) == http.StatusBadRequest:
		h.renderPage(w, r, "form", booking, line, http.StatusBadRequest)
	default:
		h.logger.Error("respond from page", slog.Any("error", respondErr), slog.Int64("line_id", claims.BookingServiceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *RespondHandler) lookup(ctx context.Context, claims *RespondClaims) (*Booking, *BookingService, error) {
	booking, err := h.service.Get(ctx, claims.OrganizationID, claims.BookingID)
	if err != nil {
		return nil, nil, err
	}
	for i := range booking.Services {
		if booking.Services[i].ID == claims.BookingServiceID {
			return booking, &booking.Services[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: service line %d", ErrNotFound, claims.BookingServiceID)
}

func (h *RespondHandler) renderPage(w http.ResponseWriter, r *http.Request, state string, booking *Booking, line *BookingService, status int) {
	data := view.NewTemplateData(r, h.csrf, "Service request", map[string]any{
		"State":   state,
		"Booking": booking,
		"Line":    line,
		"Token":   chi.URLParam(r, "token"),
	})
	if err := h.templates.RenderStatus(w, status, "respond/page", data); err != nil {
		h.logger.Error("template render failed", slog.Any("error", err), slog.String("template", "respond/page"))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
