package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Meta holds metadata for every API response.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// Envelope is the response wrapper. Success, Data, Stats, Error and Details
// keep the shape existing clients parse; Code and Meta are additive.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Stats   any    `json:"stats,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	Meta    Meta   `json:"meta"`
}

// NewMeta creates a Meta with a new UUID and current timestamp.
// If requestID is provided, it uses that instead of generating a new one.
func NewMeta(requestID string) Meta {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// JSON writes a JSON response with the given status code and envelope.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Success writes a successful response carrying data.
func Success(w http.ResponseWriter, status int, data any, requestID string) {
	JSON(w, status, Envelope{
		Success: true,
		Data:    data,
		Meta:    NewMeta(requestID),
	})
}

// SuccessWithStats writes a successful response carrying data and aggregates.
func SuccessWithStats(w http.ResponseWriter, status int, data, stats any, requestID string) {
	JSON(w, status, Envelope{
		Success: true,
		Data:    data,
		Stats:   stats,
		Meta:    NewMeta(requestID),
	})
}

// SuccessWithDetails writes a successful response whose payload lives in details.
func SuccessWithDetails(w http.ResponseWriter, status int, details any, requestID string) {
	JSON(w, status, Envelope{
		Success: true,
		Details: details,
		Meta:    NewMeta(requestID),
	})
}

// Err writes an error JSON response.
func Err(w http.ResponseWriter, status int, code string, message string, requestID string) {
	JSON(w, status, Envelope{
		Error: message,
		Code:  code,
		Meta:  NewMeta(requestID),
	})
}

// ErrWithDetails writes an error JSON response with additional details.
func ErrWithDetails(w http.ResponseWriter, status int, code string, message string, details any, requestID string) {
	JSON(w, status, Envelope{
		Error:   message,
		Code:    code,
		Details: details,
		Meta:    NewMeta(requestID),
	})
}
