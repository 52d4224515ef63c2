package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// MountRoutes registers customer routes under /customers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCustomersView, shared.PermCustomersEdit))
		r.Get("/", h.List)
		r.Get("/{id:[0-9]+}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermCustomersEdit))
		r.Get("/new", h.New)
		r.Post("/", h.Create)
		r.Get("/{id:[0-9]+}/edit", h.Edit)
		r.Post("/{id:[0-9]+}/edit", h.Update)
		r.Post("/{id:[0-9]+}/delete", h.Delete)
	})
}
