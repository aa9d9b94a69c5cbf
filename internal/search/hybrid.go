package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/ranking"
)

// HybridRetriever blends lexical and semantic relevance and applies the
// ranking heuristics. Each request runs collect, normalize, blend, adjust,
// filter, rank and truncate exactly once.
type HybridRetriever struct {
	lexical  *LexicalRetriever
	semantic *SemanticRetriever
	fallback *FallbackRetriever
	logger   *slog.Logger
	now      func() time.Time
}

// NewHybridRetriever creates a HybridRetriever.
func NewHybridRetriever(lexical *LexicalRetriever, semantic *SemanticRetriever, fallback *FallbackRetriever, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		lexical:  lexical,
		semantic: semantic,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// hybridEntry accumulates both sides' scores for one record.
type hybridEntry struct {
	record memory.Record
	raw    map[string]float64
}

// Retrieve implements Retriever for the hybrid strategy.
func (h *HybridRetriever) Retrieve(ctx context.Context, req Request, cfg ranking.Config) (*Response, error) {
	req.Limit = clampLimit(req.Limit)
	weights := ranking.ResolveWeights(cfg, req.Weights)
	meta := Metadata{
		SearchType:      SearchTypeHybrid,
		ResolvedWeights: &weights,
	}
	fetch := req.Limit * cfg.CandidateMultiplier

	// collect
	var (
		lexical, semantic []Candidate
		lexErr            error
		semanticReason    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		lexical, lexErr = h.lexical.Search(gctx, req, fetch, cfg)
		meta.Timing.LexicalMS = millisSince(start)
		if lexErr != nil {
			if _, degraded := lexicalDegradation(lexErr); !degraded {
				return lexErr
			}
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		semantic, semanticReason, err = h.semantic.Search(gctx, req, fetch, cfg)
		meta.Timing.SemanticMS = millisSince(start)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Substituted fallback candidates count as fallback only.
	if semanticReason != "" {
		meta.SemanticFallbackReason = reasonPtr(semanticReason)
		meta.Counts.Fallback += len(semantic)
	} else {
		meta.Counts.Semantic = len(semantic)
	}

	if lexErr != nil {
		reason, _ := lexicalDegradation(lexErr)
		h.logger.Warn("hybrid search degraded to fallback",
			"reason", reason,
			"strategy", StrategyHybrid,
			"error", lexErr)

		fallback, err := h.fallback.Search(ctx, req, req.Limit)
		if err != nil {
			return nil, err
		}
		meta.SearchType = SearchTypeHybridFallback
		meta.FallbackReason = reasonPtr(reason)
		meta.Counts.Fallback += len(fallback)
		meta.Counts.Merged = len(fallback)
		return &Response{Results: fallback, Metadata: meta}, nil
	}

	if len(lexical) == 0 {
		fallback, err := h.fallback.Search(ctx, req, fetch)
		if err != nil {
			return nil, err
		}
		lexical = fallback
		meta.LexicalFallbackReason = reasonPtr(ReasonNoLexicalMatches)
		meta.Counts.Fallback += len(fallback)
	} else {
		meta.Counts.Lexical = len(lexical)
	}

	results, merged := h.rank(req, cfg, weights, lexical, semantic)
	meta.Counts.Merged = merged
	return &Response{Results: results, Metadata: meta}, nil
}

// rank merges both candidate lists and runs normalize, blend, adjust,
// filter, rank and truncate. It returns the ranked results and the size of
// the merged candidate set.
func (h *HybridRetriever) rank(req Request, cfg ranking.Config, weights ranking.Weights, lexical, semantic []Candidate) ([]Candidate, int) {
	var order []string
	entries := make(map[string]*hybridEntry, len(lexical)+len(semantic))
	lexicalScores := make(map[string]float64, len(lexical))
	semanticScores := make(map[string]float64, len(semantic))

	add := func(c Candidate, scores map[string]float64) {
		e, ok := entries[c.Record.ID]
		if !ok {
			e = &hybridEntry{record: c.Record, raw: make(map[string]float64, 2)}
			entries[c.Record.ID] = e
			order = append(order, c.Record.ID)
		}
		for k, v := range c.RawScores {
			e.raw[k] = v
		}
		if _, seen := scores[c.Record.ID]; !seen {
			scores[c.Record.ID] = c.Score
		}
	}
	for _, c := range lexical {
		add(c, lexicalScores)
	}
	for _, c := range semantic {
		add(c, semanticScores)
	}

	// normalize
	lexicalNorm := ranking.Normalize(cfg.Normalization, lexicalScores)
	semanticNorm := ranking.Normalize(cfg.Normalization, semanticScores)

	now := h.now()
	results := make([]Candidate, 0, len(order))
	for _, id := range order {
		e := entries[id]

		// blend
		b := ranking.ScoreBreakdown{
			LexicalRaw:         lexicalScores[id],
			LexicalNormalized:  lexicalNorm[id],
			SemanticRaw:        semanticScores[id],
			SemanticNormalized: semanticNorm[id],
			Weights:            weights,
		}
		b.Base = b.LexicalNormalized*weights.Lexical + b.SemanticNormalized*weights.Semantic

		// adjust
		b = ranking.Adjust(b, ranking.SignalsOf(e.record), cfg, now)

		// filter
		if b.Final < req.MinScore {
			continue
		}

		results = append(results, Candidate{
			Record:      e.record,
			RawScores:   e.raw,
			Score:       b.Final,
			Breakdown:   b,
			Explanation: b.Explain(),
		})
	}

	// rank: stable so ties keep first-encounter order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	// truncate
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, len(order)
}
