package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all strategy routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/leaderboard", h.HandleLeaderboard)

		// Activations on portfolios
		r.Get("/allocations", h.HandleListActivations) // ?portfolio_id=
		r.Post("/allocations/{allocationID}/stop", h.HandleStop)
		r.Post("/liquidate", h.HandleLiquidate)

		r.Route("/{strategyID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/active", h.HandleSetActive)
			r.Put("/allocations/{assetID}", h.HandleSetAllocation)
			r.Delete("/allocations/{assetID}", h.HandleDeleteAllocation)
			r.Post("/activate", h.HandleActivate)
			r.Post("/switch", h.HandleSwitch)
		})
	})
}
