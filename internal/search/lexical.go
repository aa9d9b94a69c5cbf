package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/store"
	"github.com/onnwee/recall/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrLexicalUnsupported signals that the store cannot rank full-text matches.
	ErrLexicalUnsupported = errors.New("full-text search unsupported")
	// ErrLexicalFailed wraps unexpected errors from the full-text query.
	ErrLexicalFailed = errors.New("full-text query failed")
)

// LexicalRetriever ranks records by full-text relevance. It backs the
// fulltext strategy and the lexical side of hybrid search.
type LexicalRetriever struct {
	store    store.Store
	fallback *FallbackRetriever
	logger   *slog.Logger
}

// NewLexicalRetriever creates a LexicalRetriever.
func NewLexicalRetriever(st store.Store, fallback *FallbackRetriever, logger *slog.Logger) *LexicalRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalRetriever{store: st, fallback: fallback, logger: logger}
}

// Search runs the full-text query. It returns ErrLexicalUnsupported when the
// store has no full-text support and an error wrapping ErrLexicalFailed when
// the query fails; cancellation of ctx is returned as is.
func (l *LexicalRetriever) Search(ctx context.Context, req Request, limit int, cfg ranking.Config) (candidates []Candidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search.lexical")
	defer func() { endSpan(err) }()

	if !l.store.Capabilities().Lexical {
		return nil, ErrLexicalUnsupported
	}

	qctx, cancel := context.WithTimeout(ctx, cfg.RetrieverTimeout)
	defer cancel()

	results, err := l.store.LexicalSearch(qctx, store.LexicalQuery{
		Query:    req.Query,
		Advanced: isAdvancedQuery(req.Query),
		Filters:  req.Filters,
		Access:   req.Access,
		Limit:    limit,
		MinScore: cfg.LexicalMinScore,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, store.ErrUnsupported) {
			return nil, ErrLexicalUnsupported
		}
		return nil, fmt.Errorf("%w: %w", ErrLexicalFailed, err)
	}

	candidates = make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{
			Record:      r.Record,
			RawScores:   map[string]float64{SourceLexical: r.Score},
			Score:       r.Score,
			Breakdown:   ranking.ScoreBreakdown{LexicalRaw: r.Score, Base: r.Score, RecencyMultiplier: 1, Final: r.Score},
			Explanation: fmt.Sprintf("full-text rank %.4f", r.Score),
		}
	}
	return candidates, nil
}

// Retrieve implements Retriever for the fulltext strategy, degrading to the
// fallback retriever when full-text search is unavailable or fails.
func (l *LexicalRetriever) Retrieve(ctx context.Context, req Request, cfg ranking.Config) (*Response, error) {
	req.Limit = clampLimit(req.Limit)
	start := time.Now()
	candidates, err := l.Search(ctx, req, req.Limit, cfg)
	lexicalMS := millisSince(start)

	if err == nil {
		return &Response{
			Results: candidates,
			Metadata: Metadata{
				SearchType: SearchTypeFulltext,
				Counts:     Counts{Lexical: len(candidates), Merged: len(candidates)},
				Timing:     Timing{LexicalMS: lexicalMS},
			},
		}, nil
	}

	reason, degraded := lexicalDegradation(err)
	if !degraded {
		return nil, err
	}
	l.logger.Warn("full-text search degraded to fallback",
		"reason", reason,
		"strategy", StrategyFulltext,
		"error", err)
	tracing.AddEvent(ctx, "degraded", attribute.String("reason", reason))

	fallback, err := l.fallback.Search(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results: fallback,
		Metadata: Metadata{
			SearchType:     SearchTypeFulltextFallback,
			FallbackReason: reasonPtr(reason),
			Counts:         Counts{Fallback: len(fallback), Merged: len(fallback)},
			Timing:         Timing{LexicalMS: lexicalMS},
		},
	}, nil
}

// lexicalDegradation maps a LexicalRetriever.Search error onto a reason code.
// It reports false for errors that must not be degraded (cancellation).
func lexicalDegradation(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrLexicalUnsupported):
		return ReasonFulltextUnsupported, true
	case errors.Is(err, ErrLexicalFailed):
		return ReasonFulltextFailed, true
	default:
		return "", false
	}
}

// isAdvancedQuery reports whether q uses web-search operators: OR, AND, NOT,
// a leading minus, or a quoted phrase.
func isAdvancedQuery(q string) bool {
	if strings.Contains(q, `"`) {
		return true
	}
	for _, word := range strings.Fields(q) {
		switch word {
		case "OR", "AND", "NOT":
			return true
		}
		if len(word) > 1 && word[0] == '-' {
			return true
		}
	}
	return false
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
