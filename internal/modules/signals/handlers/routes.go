package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers signal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Get("/", h.HandlePreview)
		r.Post("/backfill", h.HandleBackfill)
		r.Post("/compute", h.HandleCompute)
		r.Get("/{symbol}/latest", h.HandleLatest)
	})
}
