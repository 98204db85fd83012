package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fleetworks/allocd/internal/alloc"
	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/internal/settings"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps domain errors onto HTTP statuses: conflicts to 409,
// unknown records to 404, validation failures to 400, the rest to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *settings.ValidationError
	switch {
	case errors.Is(err, alloc.ErrConflict):
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": false, "error": err.Error()})
	case errors.Is(err, alloc.ErrNotFound), errors.Is(err, intake.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requirePost guards mutating endpoints.
func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// parseLimit parses a limit string, returning 0 for empty or invalid values.
func parseLimit(limitStr string) int {
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}

// parseMs parses a millisecond timestamp, returning 0 when absent or invalid.
func parseMs(ts string) int64 {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil && ms > 0 {
		return ms
	}
	return 0
}
