package deals

import (
	"github.com/go-chi/chi/v5"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// MountRoutes registers deal routes under /deals.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDealsView, shared.PermDealsEdit))
		r.Get("/", h.List)
		r.Get("/{id:[0-9]+}", h.Show)
		r.Get("/{id:[0-9]+}/contract.pdf", h.Contract)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDealsEdit))
		r.Get("/new", h.New)
		r.Post("/", h.Create)
		r.Get("/{id:[0-9]+}/edit", h.Edit)
		r.Post("/{id:[0-9]+}/edit", h.Update)
		r.Post("/{id:[0-9]+}/sign", h.Sign)
		r.Post("/{id:[0-9]+}/complete", h.Complete)
		r.Post("/{id:[0-9]+}/cancel", h.Cancel)
	})
}
