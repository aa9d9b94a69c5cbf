package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncRateLimitRequests("/v1/search", "user")
	m.IncRateLimitBlocked("/v1/search", "ip")
	m.IncRateLimitRedisErrors()
	m.ObserveHTTPRequest(http.MethodPost, "/v1/search", "200", 0.01, 10, 20)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitRedisErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if !found[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncRateLimitRequests("/v1/search", "user")
	m.IncRateLimitBlocked("/v1/search", "user")
	m.IncRateLimitRedisErrors()
	m.ObserveHTTPRequest(http.MethodGet, "/health", "200", 0, 0, 0)
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/v1/search":  "/v1/search",
		"/v1/search/": "/v1/search",
		"/health":     "/health",
		"/ready":      "/ready",
		"/metrics":    "/metrics",
		"/":           "other",
		"/v1/unknown": "other",
		"/etc/passwd": "other",
	}
	for path, want := range tests {
		if got := normalizePath(path); got != want {
			t.Errorf("normalizePath(%q): expected %q, got %q", path, want, got)
		}
	}
}

func TestHTTPMetrics_RecordsRequests(t *testing.T) {
	m := NewMetrics()
	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/search" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/search", "/v1/search", "/nope", "/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/search", "200")); got != 2 {
		t.Errorf("expected 2 search requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "other", "404")); got != 1 {
		t.Errorf("expected 1 unknown-route request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.httpRequestsTotal); got != 2 {
		t.Errorf("expected probe and scrape paths to be excluded, got %d series", got)
	}

	metric := &dto.Metric{}
	observer, err := m.httpResponseSize.GetMetricWithLabelValues(http.MethodPost, "/v1/search", "200")
	if err != nil {
		t.Fatalf("failed to get histogram: %v", err)
	}
	if err := observer.(prometheus.Metric).Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != 28 {
		t.Errorf("expected 28 response bytes in total, got %v", got)
	}
}
