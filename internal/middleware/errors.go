package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes written by middleware. They share the API's error envelope.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes {"error":{"code","message"}} and records the code for request logging.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message}}); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}
