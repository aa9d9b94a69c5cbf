package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/recall/internal/embedding"
	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/store"
	"github.com/onnwee/recall/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Retriever executes one strategy against a config snapshot.
type Retriever interface {
	Retrieve(ctx context.Context, req Request, cfg ranking.Config) (*Response, error)
}

// Engine dispatches search requests to the retriever of the requested
// strategy. It is safe for concurrent use.
type Engine struct {
	retrievers map[Strategy]Retriever
	config     *ranking.ConfigProvider
	metrics    *Metrics
	logger     *slog.Logger
}

// NewEngine wires the four retrievers over st and embedder. metrics may be nil.
func NewEngine(st store.Store, embedder embedding.Provider, config *ranking.ConfigProvider, metrics *Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = ranking.NewStaticProvider(ranking.DefaultConfig())
	}

	fallback := NewFallbackRetriever(st)
	lexical := NewLexicalRetriever(st, fallback, logger)
	semantic := NewSemanticRetriever(st, embedder, fallback, logger)
	hybrid := NewHybridRetriever(lexical, semantic, fallback, logger)

	return &Engine{
		retrievers: map[Strategy]Retriever{
			StrategyBasic:    fallback,
			StrategyFulltext: lexical,
			StrategySemantic: semantic,
			StrategyHybrid:   hybrid,
		},
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Search runs req with the strategy it names. An empty query returns an empty
// result with the message "empty query". The only errors are a failing
// fallback retriever and ctx ending, in which case ctx.Err() is returned
// without waiting for in-flight retrievers.
func (e *Engine) Search(ctx context.Context, req Request) (resp *Response, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search")
	defer func() { endSpan(err) }()

	start := time.Now()
	requested := requestedStrategy(req.Strategy)
	strategy := ParseStrategy(req.Strategy)
	req.Query = strings.TrimSpace(req.Query)
	req.Limit = clampLimit(req.Limit)

	tracing.SetAttributes(ctx,
		attribute.String("search.strategy", string(strategy)),
		attribute.Int("search.limit", req.Limit))

	// One snapshot per request so a concurrent reload never mixes configs.
	cfg := e.config.Config()
	weights := ranking.ResolveWeights(cfg, req.Weights)

	if req.Query == "" {
		return &Response{
			Results: []Candidate{},
			Metadata: Metadata{
				SearchType:        string(strategy),
				RequestedStrategy: requested,
				ResolvedWeights:   &weights,
				Message:           "empty query",
			},
		}, nil
	}

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := e.retrievers[strategy].Retrieve(ctx, req, cfg)
		done <- outcome{r, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			e.logger.Error("search failed",
				"strategy", strategy,
				"error", out.err)
			return nil, out.err
		}
		resp = out.resp
	}

	if resp.Results == nil {
		resp.Results = []Candidate{}
	}
	resp.Metadata.RequestedStrategy = requested
	if resp.Metadata.ResolvedWeights == nil {
		resp.Metadata.ResolvedWeights = &weights
	}
	resp.Metadata.Counts.Returned = len(resp.Results)
	resp.Metadata.Timing.TotalMS = millisSince(start)

	tracing.SetAttributes(ctx,
		attribute.String("search.type", resp.Metadata.SearchType),
		attribute.Int("search.returned", resp.Metadata.Counts.Returned))
	e.metrics.ObserveSearch(strategy, resp.Metadata, time.Since(start).Seconds())

	return resp, nil
}

// ReloadConfig re-reads the ranking config. On failure the previous config
// stays in effect.
func (e *Engine) ReloadConfig() error {
	return e.config.Reload()
}

// requestedStrategy echoes the caller's strategy name, lowercased.
func requestedStrategy(s string) Strategy {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StrategyBasic
	}
	return Strategy(s)
}
