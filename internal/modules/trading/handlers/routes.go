package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades) // Trade history, ?portfolio_id=&limit=
		r.Post("/buy", h.HandleBuy)   // Direct buy with free cash
		r.Post("/sell", h.HandleSell) // Direct sell from the unallocated lot
		r.Get("/{reference}", h.HandleGetTrade)
	})
}
