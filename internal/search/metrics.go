package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSearchRequests  = "search_requests_total"
	MetricSearchFallbacks = "search_fallbacks_total"
	MetricSearchDuration  = "search_duration_seconds"
	MetricSearchResults   = "search_results_returned"
)

// Metrics contains Prometheus metrics for the search engine.
// All operations are thread-safe, and all methods are no-ops on a nil *Metrics.
type Metrics struct {
	requests  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	results   prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSearchRequests,
			Help: "Total number of search requests by requested strategy and executed search type",
		}, []string{"strategy", "search_type"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSearchFallbacks,
			Help: "Total number of degradations to the fallback retriever by component and reason",
		}, []string{"component", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "Histogram of end-to-end search latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"strategy"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchResults,
			Help:    "Histogram of the number of results returned per search",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.fallbacks,
		m.duration,
		m.results,
	}
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(strategy Strategy, meta Metadata, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(strategy), meta.SearchType).Inc()
	m.duration.WithLabelValues(string(strategy)).Observe(seconds)
	m.results.Observe(float64(meta.Counts.Returned))

	if meta.FallbackReason != nil {
		m.fallbacks.WithLabelValues(componentOf(*meta.FallbackReason), *meta.FallbackReason).Inc()
	}
	if meta.LexicalFallbackReason != nil {
		m.fallbacks.WithLabelValues("lexical", *meta.LexicalFallbackReason).Inc()
	}
	if meta.SemanticFallbackReason != nil {
		m.fallbacks.WithLabelValues("semantic", *meta.SemanticFallbackReason).Inc()
	}
}

// componentOf maps a reason code onto the retriever that degraded.
func componentOf(reason string) string {
	switch reason {
	case ReasonFulltextUnsupported, ReasonFulltextFailed, ReasonNoLexicalMatches:
		return "lexical"
	default:
		return "semantic"
	}
}
