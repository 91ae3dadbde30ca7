package quotes

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotes", h.List)
	r.Post("/quotes", h.Create)
	r.Get("/quotes/summary", h.Summary)
	r.Get("/quotes/expiring", h.Expiring)
	r.Get("/quotes/number/{number}", h.ShowByNumber)
	r.Get("/quotes/{id}", h.Show)
	r.Post("/quotes/{id}/status", h.UpdateStatus)
	r.Post("/quotes/{id}/revisions", h.AddRevision)
	r.Post("/quotes/{id}/convert", h.Convert)

	r.Get("/templates", h.ListTemplates)
	r.Post("/templates", h.SaveTemplate)
}
