// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/rs/zerolog"
)

// Handler handles rebalancing HTTP requests
type Handler struct {
	service *rebalancing.Service
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	service *rebalancing.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleGetDrift handles GET /rebalancing/{portfolioID}/drift
func (h *Handler) HandleGetDrift(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.Drift(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleRebalance handles POST /rebalancing/{portfolioID}
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.service.RebalancePortfolio(portfolioID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}

// HandleRebalanceAll handles POST /rebalancing/run
func (h *Handler) HandleRebalanceAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RebalanceAll()
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, summary)
}

// HandleGetLogs handles GET /rebalancing/{portfolioID}/logs
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := utils.URLParamInt64(r, "portfolioID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := h.service.Logs().ListByPortfolio(portfolioID, limit)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if logs == nil {
		logs = []rebalancing.RebalanceLog{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
