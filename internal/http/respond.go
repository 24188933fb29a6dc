package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	codeInvalidRequest   = "invalid_request"
	codeInvalidAssertion = "invalid_assertion"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeValueNotFound    = "value_not_found"
	codeConflict         = "conflict"
	codeRateLimited      = "rate_limited"
	codeMethod           = "method_not_allowed"
	codeInternal         = "internal"
)

type errorEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ErrorBody any    `json:"errorBody,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData wraps payload in the success envelope.
func writeData(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, map[string]any{"data": payload})
}

// writeError sends an error envelope.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Code: code, Message: msg})
}

// writeErrorBody sends an error envelope with structured details.
func writeErrorBody(w http.ResponseWriter, status int, code, msg string, body any) {
	writeJSON(w, status, errorEnvelope{Code: code, Message: msg, ErrorBody: body})
}
