// Package httperr writes the service's JSON error envelopes.
package httperr

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON error envelope. Message and Stack are populated only for
// internal errors; this API serves trusted internal clients, so exposing the
// diagnostic detail is a deliberate trade-off.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Write emits a JSON error response with the given status.
func Write(w http.ResponseWriter, status int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Unauthorized writes the 401 envelope.
func Unauthorized(w http.ResponseWriter) {
	Write(w, http.StatusUnauthorized, Body{Error: "Unauthorized: invalid API key"})
}

// BadRequest writes a 400 envelope with the given error text.
func BadRequest(w http.ResponseWriter, msg string) {
	Write(w, http.StatusBadRequest, Body{Error: msg})
}

// Internal writes the 500 envelope carrying the failure message and stack.
func Internal(w http.ResponseWriter, message, stack string) {
	Write(w, http.StatusInternalServerError, Body{
		Error:   "Internal server error",
		Message: message,
		Stack:   stack,
	})
}
