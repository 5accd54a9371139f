package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcus/rxsync/internal/serverdb"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeInternal      = "internal"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeConstraint    = "constraint_violation"
	ErrCodeUnknownTable  = "unknown_table"
	ErrCodeUnknownColumn = "unknown_column"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: APIError{Code: code, Message: message},
	}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

// writeStoreError maps a serverdb error onto a status and code. Anything
// unrecognised is a 500 and is logged, not echoed.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, serverdb.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, serverdb.ErrConstraint):
		writeError(w, http.StatusConflict, ErrCodeConstraint, err.Error())
	case errors.Is(err, serverdb.ErrUnknownTable):
		writeError(w, http.StatusNotFound, ErrCodeUnknownTable, err.Error())
	case errors.Is(err, serverdb.ErrUnknownColumn):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnknownColumn, err.Error())
	case errors.Is(err, serverdb.ErrMissingClient), errors.Is(err, serverdb.ErrChildrenTarget):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		logFor(r.Context()).Error("store", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}
