package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/platform/httpx"
	"github.com/motorcrm/motorcrm/internal/shared"
)

// Handler exposes the PDF pipeline over HTTP.
type Handler struct {
	client    *Client
	converter Converter
	logger    *slog.Logger
}

// NewHandler creates a documents handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, converter: client, logger: logger}
}

// RenderRequest is the body of POST /api/documents/render.
type RenderRequest struct {
	HTML    string  `json:"html" validate:"required"`
	Options Options `json:"options"`
}

// MountRoutes registers /documents routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

// Render converts posted HTML to PDF.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", describe(shared.FieldErrors(err)))
		return
	}
	pdf, err := h.converter.Convert(r.Context(), req.HTML, req.Options)
	if err != nil {
		if errors.Is(err, ErrRenderFailed) {
			h.logger.Error("render pdf", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "PDF service unavailable")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	WritePDF(w, "document.pdf", pdf)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// WritePDF sends pdf inline with the given file name.
func WritePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func describe(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for field, msg := range fields {
		parts = append(parts, field+": "+strings.ToLower(msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
