// Package handlers provides HTTP handlers for portfolios, valuation and snapshots.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service    *portfolio.Service
	portfolios *portfolio.PortfolioRepository
	holdings   *portfolio.HoldingRepository
	snapshots  *portfolio.SnapshotRepository
	log        zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	service *portfolio.Service,
	portfolios *portfolio.PortfolioRepository,
	holdings *portfolio.HoldingRepository,
	snapshots *portfolio.SnapshotRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:    service,
		portfolios: portfolios,
		holdings:   holdings,
		snapshots:  snapshots,
		log:        log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type kycRequest struct {
	Verified bool `json:"verified"`
}

// HandleList returns every portfolio
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.portfolios.List()
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if list == nil {
		list = []portfolio.Portfolio{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"portfolios": list,
		"count":      len(list),
	})
}

// HandleCreate opens a portfolio with the configured virtual balance
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if req.UserID <= 0 {
		utils.WriteError(w, h.log, http.StatusBadRequest, "user_id is required")
		return
	}

	p, err := h.service.CreatePortfolio(req.UserID, req.Name)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, p)
}

// HandleGetSummary returns the portfolio with valued holdings and its return
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	summary, err := h.service.Summary(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, summary)
}

// HandleGetLots returns the per-allocation position lots
func (h *Handler) HandleGetLots(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if _, err := h.portfolios.GetByID(id); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	lots, err := h.holdings.ListLotsByPortfolio(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if lots == nil {
		lots = []portfolio.StrategyHolding{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"lots":  lots,
		"count": len(lots),
	})
}

// HandleGetPerformance returns ROI and snapshot statistics, ?window=N limits
// the series to the last N snapshots
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	window := 0
	if raw := r.URL.Query().Get("window"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			window = parsed
		}
	}

	report, err := h.service.Performance(id, window)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, report)
}

// HandleGetSnapshots returns the portfolio's snapshot history
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	snaps, err := h.snapshots.List(id, 0)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if snaps == nil {
		snaps = []portfolio.Snapshot{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// HandleTakeSnapshot records a MANUAL snapshot
func (h *Handler) HandleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	snap, err := h.service.TakeSnapshot(id, portfolio.SnapshotManual)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, snap)
}

// HandleSetKYC flips the portfolio's KYC verification flag
func (h *Handler) HandleSetKYC(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	var req kycRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	if err := h.portfolios.SetKYCVerified(id, req.Verified); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	p, err := h.portfolios.GetByID(id)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, p)
}
