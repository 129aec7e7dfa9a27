package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", h.HandleGetSummary)  // Valued holdings and return
			r.Get("/lots", h.HandleGetLots) // Per-allocation lots
			r.Get("/performance", h.HandleGetPerformance)
			r.Get("/snapshots", h.HandleGetSnapshots)
			r.Post("/snapshots", h.HandleTakeSnapshot) // Manual snapshot
			r.Put("/kyc", h.HandleSetKYC)
		})
	})
}
