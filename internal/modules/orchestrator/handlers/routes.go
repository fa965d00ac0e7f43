package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers recommendation, universe, asset and portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/recommend", h.HandleRecommend)

	r.Route("/universe", func(r chi.Router) {
		r.Post("/build", h.HandleBuildUniverse)
		r.Get("/list", h.HandleListUniverse)
	})

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.HandleListAssets)
		r.Post("/", h.HandleCreateAsset)
	})

	r.Route("/portfolios", func(r chi.Router) {
		r.Post("/", h.HandleSavePortfolio)
		r.Get("/{userID}", h.HandleLoadPortfolios)
	})
}
