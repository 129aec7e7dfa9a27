// Package handlers provides HTTP handlers for strategy definitions and for
// activating, switching and liquidating strategies on portfolios.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/services"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles strategy HTTP requests
type Handler struct {
	service     *strategies.Service
	repo        *strategies.StrategyRepository
	allocations *strategies.PortfolioStrategyRepository
	engine      *services.StrategyEngine
	leaderboard *services.LeaderboardService
	log         zerolog.Logger
}

// NewHandler creates a new strategy handler
func NewHandler(
	service *strategies.Service,
	repo *strategies.StrategyRepository,
	allocations *strategies.PortfolioStrategyRepository,
	engine *services.StrategyEngine,
	leaderboard *services.LeaderboardService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:     service,
		repo:        repo,
		allocations: allocations,
		engine:      engine,
		leaderboard: leaderboard,
		log:         log.With().Str("handler", "strategies").Logger(),
	}
}

type createStrategyRequest struct {
	Name            string                       `json:"name"`
	Description     string                       `json:"description"`
	RiskLevel       strategies.RiskLevel         `json:"risk_level"`
	TargetReturnMin decimal.Decimal              `json:"target_return_min"`
	TargetReturnMax decimal.Decimal              `json:"target_return_max"`
	Allocations     []strategies.AllocationInput `json:"allocations"`
}

type setAllocationRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type activateRequest struct {
	PortfolioID int64  `json:"portfolio_id"`
	Amount      string `json:"amount"`
}

type portfolioRequest struct {
	PortfolioID  int64  `json:"portfolio_id"`
	AllocationID *int64 `json:"allocation_id,omitempty"`
}

// HandleList returns strategies, ?active=true for activatable ones only
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	list, err := h.repo.List(activeOnly)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if list == nil {
		list = []strategies.Strategy{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"strategies": list,
		"count":      len(list),
	})
}

// HandleCreate creates a strategy with its target weights
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createStrategyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	created, err := h.service.CreateStrategy(&strategies.Strategy{
		Name:            req.Name,
		Description:     req.Description,
		RiskLevel:       req.RiskLevel,
		TargetReturnMin: req.TargetReturnMin,
		TargetReturnMax: req.TargetReturnMax,
		IsActive:        true,
	}, req.Allocations)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, created)
}

// HandleGet returns one strategy with its allocations
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	strategy, err := h.repo.GetByID(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, strategy)
}

// HandleSetActive enables or disables a strategy for new activations
func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req setActiveRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if err := h.repo.SetActive(id, req.Active); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	h.HandleGet(w, r)
}

// HandleSetAllocation adds or replaces one asset weight
func (h *Handler) HandleSetAllocation(w http.ResponseWriter, r *http.Request) {
	strategyID, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	assetID, err := utils.URLParamInt64(r, "assetID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req setAllocationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	allocation, err := h.service.SetAllocation(strategyID, assetID, req.Percentage)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, allocation)
}

// HandleDeleteAllocation removes one asset from a strategy
func (h *Handler) HandleDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	strategyID, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	assetID, err := utils.URLParamInt64(r, "assetID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if err := h.repo.DeleteAllocation(strategyID, assetID); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLeaderboard ranks active strategies by average portfolio return
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.leaderboard.Strategies()
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"rankings": rankings,
		"count":    len(rankings),
	})
}

// HandleListActivations returns a portfolio's strategy allocations, copies included
func (h *Handler) HandleListActivations(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil || portfolioID <= 0 {
		utils.WriteError(w, h.log, http.StatusBadRequest, "portfolio_id is required")
		return
	}

	list, err := h.allocations.ListByPortfolio(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if list == nil {
		list = []strategies.PortfolioStrategy{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"allocations": list,
		"count":       len(list),
	})
}

// HandleActivate commits free cash to a strategy on a portfolio
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	strategyID, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req activateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	activation, err := h.engine.ActivateStrategy(req.PortfolioID, strategyID, amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, activation)
}

// HandleSwitch sells everything and moves all free cash into the strategy
func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	strategyID, err := utils.URLParamInt64(r, "strategyID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req portfolioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.engine.SwitchStrategy(req.PortfolioID, strategyID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleLiquidate unwinds one allocation, or every self-directed one when
// allocation_id is omitted
func (h *Handler) HandleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.engine.LiquidateStrategy(req.PortfolioID, req.AllocationID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleStop liquidates one ACTIVE allocation
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	allocationID, err := utils.URLParamInt64(r, "allocationID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req portfolioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.engine.StopStrategy(req.PortfolioID, allocationID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}
