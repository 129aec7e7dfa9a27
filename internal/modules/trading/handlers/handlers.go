// Package handlers provides HTTP handlers for trade history and direct trades.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	ledger *trading.Ledger
	log    zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(ledger *trading.Ledger, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		ledger: ledger,
		log:    log.With().Str("handler", "trading").Logger(),
	}
}

type tradeRequest struct {
	PortfolioID int64           `json:"portfolio_id"`
	AssetID     int64           `json:"asset_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Note        string          `json:"note"`
}

func (req tradeRequest) validate() error {
	if req.PortfolioID <= 0 || req.AssetID <= 0 {
		return errors.Join(domain.ErrValidation, errors.New("portfolio_id and asset_id are required"))
	}
	if !req.Quantity.IsPositive() {
		return domain.ErrInvalidAmount
	}
	return nil
}

// HandleGetTrades returns a portfolio's trade history
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil || portfolioID <= 0 {
		utils.WriteError(w, h.log, http.StatusBadRequest, "portfolio_id is required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := h.ledger.Trades().ListByPortfolio(portfolioID, limit)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if trades == nil {
		trades = []trading.Trade{}
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// HandleGetTrade returns one trade by reference
func (h *TradingHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.ledger.Trades().GetByReference(chi.URLParam(r, "reference"))
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, trade)
}

// HandleBuy buys into the unallocated lot with free cash
func (h *TradingHandlers) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if err := req.validate(); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	exec, err := h.ledger.Buy(trading.BuyRequest{
		PortfolioID: req.PortfolioID,
		AssetID:     req.AssetID,
		Quantity:    req.Quantity,
		Note:        req.Note,
	})
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	h.writeExecution(w, exec)
}

// HandleSell sells from the unallocated lot
func (h *TradingHandlers) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if err := req.validate(); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	exec, err := h.ledger.Sell(trading.SellRequest{
		PortfolioID: req.PortfolioID,
		AssetID:     req.AssetID,
		Quantity:    req.Quantity,
		Note:        req.Note,
	})
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	h.writeExecution(w, exec)
}

// Skipped executions are reported as 422 with the skip reason
func (h *TradingHandlers) writeExecution(w http.ResponseWriter, exec *trading.Execution) {
	if !exec.Executed {
		utils.WriteJSON(w, h.log, http.StatusUnprocessableEntity, exec)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, exec)
}
