package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"peertrust/internal/domain"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnf("failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Warnf("failed to encode error response: %v", err)
	}
}

// writeServiceError maps err onto a status code and logs store-layer failures
func writeServiceError(w http.ResponseWriter, action string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", action, err)
	}
	writeError(w, action, err.Error(), status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
