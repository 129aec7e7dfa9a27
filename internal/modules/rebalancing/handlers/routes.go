package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Post("/run", h.HandleRebalanceAll)
		r.Post("/{portfolioID}", h.HandleRebalance)
		r.Get("/{portfolioID}/drift", h.HandleGetDrift)
		r.Get("/{portfolioID}/logs", h.HandleGetLogs)
	})
}
