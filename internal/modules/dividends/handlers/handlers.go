// Package handlers provides HTTP handlers for REIT dividend payouts.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles dividend HTTP requests
type Handler struct {
	service *dividends.Service
	log     zerolog.Logger
}

// NewHandler creates a new dividend handler
func NewHandler(service *dividends.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "dividends").Logger(),
	}
}

// RegisterRoutes registers all dividend routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dividends", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/pay", h.HandlePay) // Manual run of the scheduled payout
	})
}

// HandleList returns a portfolio's dividend log and total paid
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil || portfolioID <= 0 {
		utils.WriteError(w, h.log, http.StatusBadRequest, "portfolio_id is required")
		return
	}

	logs, err := h.service.Dividends().ListByPortfolio(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if logs == nil {
		logs = []dividends.DividendLog{}
	}
	total, err := h.service.Dividends().TotalByPortfolio(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"dividends": logs,
		"total":     total,
	})
}

// HandlePay pays one dividend period across every REIT holding
func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.PayREITDividends()
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, summary)
}
