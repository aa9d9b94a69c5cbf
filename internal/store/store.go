// Package store provides read access to memory records for the search
// retrievers. It defines the storage interface the ranking engine depends on
// and ships a PostgreSQL implementation (full-text search plus pgvector) and
// an in-memory implementation for tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/onnwee/recall/internal/memory"
)

// ErrUnsupported is returned when a store lacks the capability a query needs.
var ErrUnsupported = errors.New("operation not supported by store")

// ErrDimensionMismatch is returned when a vector does not have the
// deployment-wide embedding dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Capabilities reports which search features the backing store supports.
type Capabilities struct {
	Lexical bool `json:"lexical"`
	Vector  bool `json:"vector"`
}

// LexicalQuery is a full-text search request.
type LexicalQuery struct {
	Query string
	// Advanced selects web-search syntax (OR, -term, quoted phrases)
	// instead of plain conjunctive matching.
	Advanced bool
	Filters  memory.Filters
	Access   memory.AccessFilter
	Limit    int
	// MinScore drops rows whose raw lexical score is below it. 0 disables it.
	MinScore float64
}

// VectorQuery is a nearest-neighbour search request.
type VectorQuery struct {
	Vector []float32
	// Threshold is the minimum cosine similarity, in [-1, 1].
	Threshold float64
	Filters   memory.Filters
	Access    memory.AccessFilter
	Limit     int
}

// TermQuery is a case-insensitive substring search over content, context and ID.
type TermQuery struct {
	Terms    []string
	MatchAll bool
	Filters  memory.Filters
	Access   memory.AccessFilter
	Limit    int
}

// ScoredRecord pairs a record with the raw score the store computed for it.
type ScoredRecord struct {
	Record memory.Record
	Score  float64
}

// Store is the read interface used by the retrievers. Every method applies
// the query's Filters and Access predicate before returning rows.
type Store interface {
	// Capabilities reports which optional search features are available.
	Capabilities() Capabilities

	// LexicalSearch returns matches ordered by score desc, then most recent first.
	// Returns ErrUnsupported when full-text search is unavailable.
	LexicalSearch(ctx context.Context, q LexicalQuery) ([]ScoredRecord, error)

	// VectorSearch returns rows with an embedding whose cosine similarity is at
	// least q.Threshold, ordered by distance asc, then most recent first.
	// Score is the similarity. Returns ErrUnsupported when vectors are unavailable.
	VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredRecord, error)

	// TermSearch returns records matching the terms, most recent first, ties by ID.
	TermSearch(ctx context.Context, q TermQuery) ([]memory.Record, error)
}
