package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/sharedsync"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain errors to HTTP statuses. Anything unknown is logged
// and reported as a 500.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
		return
	}
	var herr *sharedsync.HTTPError
	if errors.As(err, &herr) {
		JSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	switch {
	case errors.Is(err, state.ErrReminderNotFound),
		errors.Is(err, state.ErrNotificationNotFound),
		errors.Is(err, sharedsync.ErrNothingToExport):
		JSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, state.ErrUnknownList),
		errors.Is(err, state.ErrInvalidReminder),
		errors.Is(err, state.ErrUnknownTab),
		errors.Is(err, state.ErrInvalidQuota),
		errors.Is(err, sharedsync.ErrInvalidURL),
		errors.Is(err, session.ErrInvalidUsername),
		errors.Is(err, session.ErrUnknownMode):
		JSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sharedsync.ErrMalformedSnapshot):
		JSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, sharedsync.ErrNoTarget),
		errors.Is(err, sharedsync.ErrAborted):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNotSignedIn):
		JSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, state.ErrClosed):
		JSONError(w, "Service is shutting down", http.StatusServiceUnavailable)
	default:
		log.Error("request failed", "error", err)
		JSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
