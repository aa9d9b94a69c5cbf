package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/recall/internal/health"
)

// ReadinessTimeout bounds all dependency checks of one readiness probe.
const ReadinessTimeout = 5 * time.Second

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	checkers []health.Checker
}

// NewHealthHandlers creates health handlers probing the given dependencies.
// Dependencies that are not configured are simply not passed.
func NewHealthHandlers(checkers ...health.Checker) *HealthHandlers {
	return &HealthHandlers{checkers: checkers}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It returns 503 if any configured
// dependency fails its check.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for _, c := range h.checkers {
		if err := c.HealthCheck(ctx); err != nil {
			checks[c.Name()] = "error"
			healthy = false
			slog.WarnContext(ctx, "health check failed", "dependency", c.Name(), "error", err)
			continue
		}
		checks[c.Name()] = "ok"
	}

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, r.Context(), statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
