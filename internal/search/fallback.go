package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/store"
	"github.com/onnwee/recall/internal/tracing"
)

// FallbackRetriever matches query terms as case-insensitive substrings of a
// record's content, context or ID. It backs the basic strategy and is the
// safety net of every other strategy.
type FallbackRetriever struct {
	store store.Store
}

// NewFallbackRetriever creates a FallbackRetriever.
func NewFallbackRetriever(st store.Store) *FallbackRetriever {
	return &FallbackRetriever{store: st}
}

// Search returns up to limit matches, most recent first, scored
// 1 - i/(n+1) by position.
func (f *FallbackRetriever) Search(ctx context.Context, req Request, limit int) (candidates []Candidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "search.fallback")
	defer func() { endSpan(err) }()

	terms := fallbackTerms(req)
	if len(terms) == 0 {
		return []Candidate{}, nil
	}

	records, err := f.store.TermSearch(ctx, store.TermQuery{
		Terms:    terms,
		MatchAll: req.MatchAll,
		Filters:  req.Filters,
		Access:   req.Access,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}

	n := len(records)
	candidates = make([]Candidate, n)
	for i, r := range records {
		score := rankScore(i, n)
		b := ranking.ScoreBreakdown{
			Base:              score,
			RecencyMultiplier: 1,
			Final:             score,
		}
		candidates[i] = Candidate{
			Record:      r,
			RawScores:   map[string]float64{SourceFallback: score},
			Score:       score,
			Breakdown:   b,
			Explanation: fmt.Sprintf("fallback term match, rank %d of %d; final %.4f", i+1, n, score),
		}
	}
	return candidates, nil
}

// Retrieve implements Retriever for the basic strategy.
func (f *FallbackRetriever) Retrieve(ctx context.Context, req Request, _ ranking.Config) (*Response, error) {
	req.Limit = clampLimit(req.Limit)
	candidates, err := f.Search(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results: candidates,
		Metadata: Metadata{
			SearchType: SearchTypeBasic,
			Counts:     Counts{Fallback: len(candidates), Merged: len(candidates)},
		},
	}, nil
}

// fallbackTerms returns the explicit terms, or the whitespace-split query.
func fallbackTerms(req Request) []string {
	source := req.Terms
	if len(source) == 0 {
		source = strings.Fields(req.Query)
	}
	terms := make([]string, 0, len(source))
	for _, t := range source {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// rankScore is the synthetic score of position i among n results.
func rankScore(i, n int) float64 {
	return 1 - float64(i)/float64(n+1)
}
