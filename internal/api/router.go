package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/recall/internal/middleware"
)

// RouterConfig wires the handlers and middleware of the HTTP server.
type RouterConfig struct {
	Search  *SearchHandlers
	Health  *HealthHandlers
	Metrics http.Handler // /metrics; omitted when nil

	Tokens         middleware.TokenValidator
	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig
	HTTPMetrics    *middleware.Metrics

	ServiceName string
	Logger      *slog.Logger
}

// NewRouter builds the server handler:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> routes, with search behind
// Authenticate -> RateLimiter.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	var searchHandler http.Handler = http.HandlerFunc(cfg.Search.Search)
	if cfg.RateLimitStore != nil {
		searchHandler = middleware.RateLimiter(cfg.RateLimitStore, cfg.RateLimit, middleware.UserKeyFunc(), cfg.HTTPMetrics)(searchHandler)
	}
	searchHandler = middleware.Authenticate(cfg.Tokens)(searchHandler)
	mux.Handle("/v1/search", allowMethod(http.MethodPost, searchHandler))

	mux.Handle("/health", allowMethod(http.MethodGet, http.HandlerFunc(cfg.Health.Health)))
	mux.Handle("/ready", allowMethod(http.MethodGet, http.HandlerFunc(cfg.Health.Ready)))
	if cfg.Metrics != nil {
		mux.Handle("/metrics", allowMethod(http.MethodGet, cfg.Metrics))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(cfg.HTTPMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(cfg.ServiceName)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// allowMethod rejects other methods with 405 before any authentication runs.
func allowMethod(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}
