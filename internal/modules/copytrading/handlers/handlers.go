// Package handlers provides HTTP handlers for following and unfollowing leaders.
package handlers

import (
	"net/http"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/services"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles copy-trading HTTP requests
type Handler struct {
	propagator    *services.CopyPropagator
	relationships *copytrading.Repository
	leaderboard   *services.LeaderboardService
	log           zerolog.Logger
}

// NewHandler creates a new copy-trading handler
func NewHandler(
	propagator *services.CopyPropagator,
	relationships *copytrading.Repository,
	leaderboard *services.LeaderboardService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		propagator:    propagator,
		relationships: relationships,
		leaderboard:   leaderboard,
		log:           log.With().Str("handler", "copytrading").Logger(),
	}
}

// RegisterRoutes registers all copy-trading routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/copy-trading", func(r chi.Router) {
		r.Get("/leaders", h.HandleLeaders) // Leader leaderboard
		r.Get("/followers/{followerID}", h.HandleListFollowing)
		r.Post("/follow", h.HandleFollow)
		r.Post("/stop", h.HandleStop)
	})
}

type followRequest struct {
	FollowerID int64  `json:"follower_id"`
	LeaderID   int64  `json:"leader_id"`
	Amount     string `json:"amount"`
}

// HandleLeaders ranks leaders with active followers by return
func (h *Handler) HandleLeaders(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.leaderboard.Leaders()
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"leaders": rankings,
		"count":   len(rankings),
	})
}

// HandleListFollowing returns the relationships a follower holds
func (h *Handler) HandleListFollowing(w http.ResponseWriter, r *http.Request) {
	followerID, err := utils.URLParamInt64(r, "followerID")
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	rels, err := h.relationships.ListByFollower(followerID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	if rels == nil {
		rels = []copytrading.CopyRelationship{}
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"relationships": rels,
		"count":         len(rels),
	})
}

// HandleFollow funds a new relationship and copies the leader's strategies
func (h *Handler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.propagator.Follow(req.FollowerID, req.LeaderID, amount)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusCreated, result)
}

// HandleStop unwinds every copy and pays the relationship back to free cash
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}

	result, err := h.propagator.StopCopyingAndUnwind(req.FollowerID, req.LeaderID)
	if err != nil {
		utils.WriteDomainError(w, h.log, err)
		return
	}
	utils.WriteJSON(w, h.log, http.StatusOK, result)
}
