// Package utils holds small helpers shared by the HTTP handlers and jobs.
package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WriteJSON encodes data as the response body
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes {"error": message} with the given status
func WriteError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	WriteJSON(w, log, status, map[string]string{"error": message})
}

// WriteDomainError maps a domain error to its HTTP status
func WriteDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	WriteError(w, log, status, err.Error())
}

// StatusForError returns the HTTP status for an error from the accounting core
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds), domain.IsInvariantViolation(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// DecodeJSON decodes the request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}

// URLParamInt64 parses a chi URL parameter as an int64 ID
func URLParamInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(domain.ErrValidation, errors.New("invalid "+name))
	}
	return id, nil
}
