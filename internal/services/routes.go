package services

import (
	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// MountRoutes registers service routes under /services.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermServicesView, shared.PermServicesEdit))
		r.Get("/", h.List)
		r.Get("/{id:[0-9]+}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermServicesEdit))
		r.Get("/new", h.New)
		r.Post("/", h.Create)
		r.Get("/{id:[0-9]+}/edit", h.Edit)
		r.Post("/{id:[0-9]+}/edit", h.Update)
		r.Post("/{id:[0-9]+}/delete", h.Delete)
	})
}
