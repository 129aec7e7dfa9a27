package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
)

// handleHealth reports whether the ledger database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.container.LedgerDB.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		utils.WriteJSON(w, s.log, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "stonecrest",
			"error":   err.Error(),
		})
		return
	}

	utils.WriteJSON(w, s.log, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "stonecrest",
	})
}
