package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write JSON response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, errorCode, message string, details any) {
	respondJSON(w, status, ErrorResponse{ErrorCode: errorCode, Message: message, Details: details})
}

func respondWithBadRequest(w http.ResponseWriter, message string, details any) {
	respondWithError(w, http.StatusBadRequest, "bad_request", message, details)
}

func respondWithUnauthorized(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

func respondWithNotFound(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusNotFound, "not_found", message, nil)
}

func respondWithInternalError(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// respondWithDomainError maps pipeline errors onto HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondWithBadRequest(w, err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		respondWithNotFound(w, message)
	case errors.Is(err, domain.ErrEmbeddingService), errors.Is(err, domain.ErrCompletionService):
		respondWithError(w, http.StatusServiceUnavailable, "upstream_unavailable", message, nil)
	case errors.Is(err, domain.ErrIndexBuild):
		respondWithError(w, http.StatusInternalServerError, "index_build_failed", message, err.Error())
	default:
		respondWithInternalError(w, message)
	}
}
