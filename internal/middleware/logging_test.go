package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogEntry represents a parsed JSON log entry for testing.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func serveLogged(t *testing.T, h http.Handler, req *http.Request) testLogEntry {
	t.Helper()
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(h)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}), httptest.NewRequest(http.MethodPost, "/v1/search", nil))

	if entry.Method != http.MethodPost {
		t.Errorf("expected method POST, got %s", entry.Method)
	}
	if entry.Path != "/v1/search" {
		t.Errorf("expected path /v1/search, got %s", entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Msg != "request completed" {
		t.Errorf("expected message %q, got %q", "request completed", entry.Msg)
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	req.Header.Set(RequestIDHeader, "test-request-id-456")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.RequestID != "test-request-id-456" {
		t.Errorf("expected request_id test-request-id-456, got %s", entry.RequestID)
	}
}

// Values set by inner handlers must reach the log line even though the handler's
// derived context never flows back out.
func TestLogging_FieldsSetByInnerHandlers(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
		wantCode  string
	}{
		{name: "success ignores code", status: http.StatusOK, wantLevel: "INFO", wantCode: ""},
		{name: "client error", status: http.StatusBadRequest, wantLevel: "WARN", wantCode: "validation_error"},
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR", wantCode: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := SetUserID(r.Context(), "user-1")
				SetErrorCode(ctx, "validation_error")
				w.WriteHeader(tt.status)
			}), httptest.NewRequest(http.MethodPost, "/v1/search", nil))

			if entry.UserID != "user-1" {
				t.Errorf("expected user_id user-1, got %q", entry.UserID)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("expected error_code %q, got %q", tt.wantCode, entry.ErrorCode)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entry.Level)
			}
		})
	}
}

func TestLogging_DefaultStatus(t *testing.T) {
	entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), httptest.NewRequest(http.MethodGet, "/health", nil))

	if entry.Status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", entry.Status)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)
	rw.WriteHeader(http.StatusTooManyRequests)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rw.statusCode)
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected recorder status 429, got %d", rr.Code)
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if got := GetUserID(ctx); got != "" {
		t.Errorf("expected empty user ID, got %q", got)
	}
	if got := GetErrorCode(ctx); got != "" {
		t.Errorf("expected empty error code, got %q", got)
	}

	ctx = SetErrorCode(SetUserID(ctx, "user-9"), "unauthorized")
	if got := GetUserID(ctx); got != "user-9" {
		t.Errorf("expected user-9, got %q", got)
	}
	if got := GetErrorCode(ctx); got != "unauthorized" {
		t.Errorf("expected unauthorized, got %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		if logger := NewLogger(env); logger == nil {
			t.Errorf("%s: expected non-nil logger", env)
		}
	}
	if !NewLogger("development").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level enabled outside production")
	}
	if NewLogger("production").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level disabled in production")
	}
}
