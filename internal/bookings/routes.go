package bookings

import (
	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// MountRoutes registers staff booking routes under /bookings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBookingsView, shared.PermBookingsEdit))
		r.Get("/", h.List)
		r.Get("/{id:[0-9]+}", h.Show)
		r.Get("/{id:[0-9]+}/invoice.pdf", h.Invoice)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBookingsEdit))
		r.Get("/new", h.New)
		r.Post("/", h.Create)
		r.Get("/{id:[0-9]+}/edit", h.Edit)
		r.Post("/{id:[0-9]+}/edit", h.Update)
		r.Post("/{id:[0-9]+}/send", h.Send)
		r.Post("/{id:[0-9]+}/cancel", h.Cancel)
		r.Post("/{id:[0-9]+}/services", h.AddService)
		r.Post("/{id:[0-9]+}/services/{sid:[0-9]+}/remove", h.RemoveService)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBookingsRespond))
		r.Post("/{id:[0-9]+}/services/{sid:[0-9]+}/respond", h.RespondService)
	})
}
