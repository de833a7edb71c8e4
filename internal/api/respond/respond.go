// Package respond writes JSON responses and maps domain errors to HTTP status codes.
package respond

import (
	"context"
	"encoding/json"
	"net/http"

	"finvisor/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

// JSON writes v with the status code
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as {"error": ...} with the status mapped from it
func Error(w http.ResponseWriter, err error) {
	JSON(w, StatusCode(err), errorResponse{Error: err.Error()})
}

// StatusCode maps domain errors to HTTP status codes
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrNoFilings), errors.Is(err, errors.ErrUnknownTicker):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrLocked), errors.Is(err, errors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrUnavailable), errors.Is(err, errors.ErrNotImplemented):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
