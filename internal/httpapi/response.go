package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope statuses.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// respondWithJSON writes payload as JSON with the given status code.
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// errorResponse writes an error envelope. data may be nil.
func errorResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	respondWithJSON(w, statusCode, APIResponse{
		Status:  statusError,
		Message: message,
		Data:    data,
	})
}

// successResponse writes a 200 success envelope.
func successResponse(w http.ResponseWriter, message string, data any) {
	respondWithJSON(w, http.StatusOK, APIResponse{
		Status:  statusSuccess,
		Message: message,
		Data:    data,
	})
}
