package search

import (
	"strings"

	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/ranking"
)

// Strategy names a retrieval strategy.
type Strategy string

// Supported strategies.
const (
	StrategyBasic    Strategy = "basic"
	StrategyFulltext Strategy = "fulltext"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// ParseStrategy maps a requested strategy name onto a Strategy.
// Unknown or empty names resolve to StrategyBasic.
func ParseStrategy(s string) Strategy {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyBasic, StrategyFulltext, StrategySemantic, StrategyHybrid:
		return st
	default:
		return StrategyBasic
	}
}

// Search types reported in Metadata.SearchType. They differ from the
// requested strategy when a strategy degraded to the fallback retriever.
const (
	SearchTypeBasic            = "basic"
	SearchTypeFulltext         = "fulltext"
	SearchTypeFulltextFallback = "fulltext_fallback"
	SearchTypeSemantic         = "semantic"
	SearchTypeSemanticFallback = "semantic_fallback"
	SearchTypeHybrid           = "hybrid"
	SearchTypeHybridFallback   = "hybrid_fallback"
)

// Degradation reason codes.
const (
	ReasonFulltextUnsupported = "fulltext_unsupported"
	ReasonFulltextFailed      = "fulltext_query_failed"
	ReasonNoLexicalMatches    = "no_lexical_matches"

	ReasonEmbeddingDisabled   = "embedding_provider_disabled"
	ReasonVectorUnsupported   = "vector_search_unsupported"
	ReasonEmbeddingFailed     = "embedding_failed"
	ReasonVectorQueryFailed   = "vector_query_failed"
	ReasonNoSemanticMatches   = "no_semantic_matches"
)

// Score source keys used in Candidate.RawScores.
const (
	SourceLexical  = "lexical"
	SourceSemantic = "semantic"
	SourceFallback = "fallback"
)

// Result limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Request is a single search call.
type Request struct {
	Query    string
	Filters  memory.Filters
	Limit    int
	Strategy string

	// Weights overrides the configured hybrid weights. nil means no override.
	Weights *ranking.Weights
	// MinScore drops hybrid candidates whose final score is below it.
	MinScore float64

	// Terms replaces the whitespace-split query for the fallback retriever.
	Terms    []string
	MatchAll bool

	Access memory.AccessFilter
}

// clampLimit applies DefaultLimit and MaxLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Candidate is a record scored during one search.
type Candidate struct {
	Record memory.Record
	// RawScores maps a score source (lexical, semantic, fallback) to the
	// score it produced before normalization.
	RawScores   map[string]float64
	Score       float64
	Breakdown   ranking.ScoreBreakdown
	Explanation string
}

// Counts reports how many candidates each stage handled.
type Counts struct {
	Lexical  int `json:"lexical"`
	Semantic int `json:"semantic"`
	Fallback int `json:"fallback"`
	Merged   int `json:"merged"`
	Returned int `json:"returned"`
}

// Timing reports stage latencies in milliseconds.
type Timing struct {
	TotalMS    float64 `json:"total_ms"`
	LexicalMS  float64 `json:"lexical_ms"`
	SemanticMS float64 `json:"semantic_ms"`
}

// Metadata describes how a search was executed.
type Metadata struct {
	SearchType        string   `json:"search_type"`
	RequestedStrategy Strategy `json:"requested_strategy"`
	// FallbackReason is set when the requested strategy as a whole degraded.
	FallbackReason *string `json:"fallback_reason"`
	// LexicalFallbackReason and SemanticFallbackReason are set when one side
	// of a hybrid search was replaced by fallback results.
	LexicalFallbackReason  *string          `json:"lexical_fallback_reason,omitempty"`
	SemanticFallbackReason *string          `json:"semantic_fallback_reason,omitempty"`
	Counts                 Counts           `json:"counts"`
	// ResolvedWeights is reported for every strategy, only hybrid blends with it.
	ResolvedWeights        *ranking.Weights `json:"resolved_weights"`
	Timing                 Timing           `json:"timing"`
	Message                string           `json:"message,omitempty"`
}

// Response is the result of a search.
type Response struct {
	Results  []Candidate
	Metadata Metadata
}

func reasonPtr(reason string) *string {
	return &reason
}
