// Package handlers provides HTTP handlers for deposits and withdrawals.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/cash_flows"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles cash flow HTTP requests
type Handler struct {
	service *cash_flows.Service
	log     zerolog.Logger
}

// NewHandler creates a new cash flow handler
func NewHandler(service *cash_flows.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "cash_flows").Logger(),
	}
}

// RegisterRoutes registers all cash flow routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cash-flows", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/deposit", h.HandleDeposit)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/{id}/complete", h.HandleComplete) // External approval workflow
	})
}

type cashFlowRequest struct {
	PortfolioID int64  `json:"portfolio_id"`
	Amount      string `json:"amount"`
}

// HandleList returns a portfolio's cash flows with per-type totals
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil || portfolioID <= 0 {
		utils.WriteError(w, h.log, http.StatusBadRequest, "portfolio_id is required")
		return
	}

	flows, err := h.service.Flows().ListByPortfolio(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if flows == nil {
		flows = []cash_flows.CashFlow{}
	}
	totals, err := h.service.Flows().GetTotalsByType(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"cash_flows": flows,
		"totals":     totals,
	})
}

// HandleDeposit credits free cash
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleFlow(w, r, h.service.Deposit)
}

// HandleWithdraw debits free cash into a pending withdrawal
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleFlow(w, r, h.service.Withdraw)
}

// HandleComplete marks a pending withdrawal completed
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "id")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	flow, err := h.service.CompleteWithdrawal(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, flow)
}

func (h *Handler) handleFlow(w http.ResponseWriter, r *http.Request, apply func(int64, decimal.Decimal) (*cash_flows.CashFlow, error)) {
	var req cashFlowRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	flow, err := apply(req.PortfolioID, amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, flow)
}
