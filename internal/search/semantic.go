package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/recall/internal/embedding"
	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/store"
	"github.com/onnwee/recall/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// SemanticRetriever ranks records by cosine similarity between the query
// embedding and stored embeddings. Any failure along the way degrades to the
// fallback retriever; only a failing fallback or a canceled request is an error.
type SemanticRetriever struct {
	store    store.Store
	embedder embedding.Provider
	fallback *FallbackRetriever
	logger   *slog.Logger
}

// NewSemanticRetriever creates a SemanticRetriever.
func NewSemanticRetriever(st store.Store, embedder embedding.Provider, fallback *FallbackRetriever, logger *slog.Logger) *SemanticRetriever {
	if embedder == nil {
		embedder = embedding.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticRetriever{store: st, embedder: embedder, fallback: fallback, logger: logger}
}

// semanticState is threaded through the guard ladder.
type semanticState struct {
	req     Request
	cfg     ranking.Config
	limit   int
	vector  []float32
	matches []store.ScoredRecord
	err     error
}

// semanticGuard is one rung of the degradation ladder. It returns a reason
// code to degrade, or "" to proceed to the next rung.
type semanticGuard func(ctx context.Context, st *semanticState) string

// guards returns the degradation ladder in evaluation order.
func (s *SemanticRetriever) guards() []semanticGuard {
	return []semanticGuard{
		s.requireEmbedder,
		s.requireVectorSupport,
		s.embedQuery,
		s.queryVectors,
		s.requireMatches,
	}
}

func (s *SemanticRetriever) requireEmbedder(_ context.Context, _ *semanticState) string {
	if !s.embedder.Enabled() {
		return ReasonEmbeddingDisabled
	}
	return ""
}

func (s *SemanticRetriever) requireVectorSupport(_ context.Context, _ *semanticState) string {
	if !s.store.Capabilities().Vector {
		return ReasonVectorUnsupported
	}
	return ""
}

func (s *SemanticRetriever) embedQuery(ctx context.Context, st *semanticState) string {
	ectx, cancel := context.WithTimeout(ctx, st.cfg.RetrieverTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ectx, st.req.Query)
	if err != nil {
		st.err = err
		return ReasonEmbeddingFailed
	}
	if len(vec) == 0 {
		st.err = embedding.ErrEmptyEmbedding
		return ReasonEmbeddingFailed
	}
	st.vector = vec
	return ""
}

func (s *SemanticRetriever) queryVectors(ctx context.Context, st *semanticState) string {
	qctx, cancel := context.WithTimeout(ctx, st.cfg.RetrieverTimeout)
	defer cancel()

	matches, err := s.store.VectorSearch(qctx, store.VectorQuery{
		Vector:    st.vector,
		Threshold: st.cfg.SemanticThreshold,
		Filters:   st.req.Filters,
		Access:    st.req.Access,
		Limit:     st.limit,
	})
	if err != nil {
		st.err = err
		return ReasonVectorQueryFailed
	}
	st.matches = matches
	return ""
}

func (s *SemanticRetriever) requireMatches(_ context.Context, st *semanticState) string {
	if len(st.matches) == 0 {
		return ReasonNoSemanticMatches
	}
	return ""
}

// Search returns up to limit candidates. When the ladder degrades, the
// candidates come from the fallback retriever and reason is the degradation
// reason code; otherwise reason is empty.
func (s *SemanticRetriever) Search(ctx context.Context, req Request, limit int, cfg ranking.Config) (candidates []Candidate, reason string, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search.semantic")
	defer func() { endSpan(err) }()

	st := &semanticState{req: req, cfg: cfg, limit: limit}
	for _, guard := range s.guards() {
		if reason = guard(ctx, st); reason != "" {
			break
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}

	if reason == "" {
		candidates = make([]Candidate, len(st.matches))
		for i, m := range st.matches {
			candidates[i] = Candidate{
				Record:      m.Record,
				RawScores:   map[string]float64{SourceSemantic: m.Score},
				Score:       m.Score,
				Breakdown:   ranking.ScoreBreakdown{SemanticRaw: m.Score, Base: m.Score, RecencyMultiplier: 1, Final: m.Score},
				Explanation: fmt.Sprintf("cosine similarity %.4f", m.Score),
			}
		}
		return candidates, "", nil
	}

	attrs := []any{"reason", reason, "strategy", StrategySemantic}
	if st.err != nil {
		attrs = append(attrs, "error", st.err)
	}
	s.logger.Warn("semantic search degraded to fallback", attrs...)
	tracing.AddEvent(ctx, "degraded", attribute.String("reason", reason))

	candidates, err = s.fallback.Search(ctx, req, limit)
	if err != nil {
		return nil, reason, err
	}
	return candidates, reason, nil
}

// Retrieve implements Retriever for the semantic strategy.
func (s *SemanticRetriever) Retrieve(ctx context.Context, req Request, cfg ranking.Config) (*Response, error) {
	req.Limit = clampLimit(req.Limit)
	start := time.Now()
	candidates, reason, err := s.Search(ctx, req, req.Limit, cfg)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		SearchType: SearchTypeSemantic,
		Counts:     Counts{Semantic: len(candidates), Merged: len(candidates)},
		Timing:     Timing{SemanticMS: millisSince(start)},
	}
	if reason != "" {
		meta.SearchType = SearchTypeSemanticFallback
		meta.FallbackReason = reasonPtr(reason)
		meta.Counts = Counts{Fallback: len(candidates), Merged: len(candidates)}
	}
	return &Response{Results: candidates, Metadata: meta}, nil
}
