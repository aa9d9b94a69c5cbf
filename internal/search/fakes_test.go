package search

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/onnwee/recall/internal/embedding"
	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/store"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore returns scripted results and records the queries it received.
type fakeStore struct {
	caps store.Capabilities

	lexical    []store.ScoredRecord
	lexicalErr error
	vector     []store.ScoredRecord
	vectorErr  error
	terms      []memory.Record
	termErr    error

	// block, when non-nil, makes LexicalSearch wait on it regardless of ctx.
	block chan struct{}

	mu           sync.Mutex
	lexicalCalls []store.LexicalQuery
	vectorCalls  []store.VectorQuery
	termCalls    []store.TermQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{caps: store.Capabilities{Lexical: true, Vector: true}}
}

func (f *fakeStore) Capabilities() store.Capabilities { return f.caps }

func (f *fakeStore) LexicalSearch(ctx context.Context, q store.LexicalQuery) ([]store.ScoredRecord, error) {
	f.mu.Lock()
	f.lexicalCalls = append(f.lexicalCalls, q)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return limitScored(f.lexical, q.Limit), nil
}

func (f *fakeStore) VectorSearch(ctx context.Context, q store.VectorQuery) ([]store.ScoredRecord, error) {
	f.mu.Lock()
	f.vectorCalls = append(f.vectorCalls, q)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return limitScored(f.vector, q.Limit), nil
}

func (f *fakeStore) TermSearch(ctx context.Context, q store.TermQuery) ([]memory.Record, error) {
	f.mu.Lock()
	f.termCalls = append(f.termCalls, q)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.termErr != nil {
		return nil, f.termErr
	}
	out := f.terms
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return append([]memory.Record(nil), out...), nil
}

func limitScored(in []store.ScoredRecord, limit int) []store.ScoredRecord {
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return append([]store.ScoredRecord(nil), in...)
}

// fakeEmbedder returns a fixed vector or error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Enabled() bool { return true }

func (f fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.vec, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rec(id string, visibility memory.Visibility) memory.Record {
	return memory.Record{
		ID:         id,
		OwnerID:    "user-1",
		Content:    "content of " + id,
		Visibility: visibility,
	}
}

func scored(r memory.Record, score float64) store.ScoredRecord {
	return store.ScoredRecord{Record: r, Score: score}
}

// plainConfig is the default config with every heuristic switched off.
func plainConfig() ranking.Config {
	cfg := ranking.DefaultConfig()
	cfg.Recency.Enabled = false
	cfg.Feedback.Enabled = false
	cfg.Scope.Enabled = false
	cfg.Reranker.Enabled = false
	return cfg
}

type retrievers struct {
	fallback *FallbackRetriever
	lexical  *LexicalRetriever
	semantic *SemanticRetriever
	hybrid   *HybridRetriever
}

func newRetrievers(st store.Store, embedder embedding.Provider) retrievers {
	logger := quietLogger()
	fallback := NewFallbackRetriever(st)
	lexical := NewLexicalRetriever(st, fallback, logger)
	semantic := NewSemanticRetriever(st, embedder, fallback, logger)
	hybrid := NewHybridRetriever(lexical, semantic, fallback, logger)
	hybrid.now = func() time.Time { return testNow }
	return retrievers{fallback: fallback, lexical: lexical, semantic: semantic, hybrid: hybrid}
}

func ids(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Record.ID
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func weightsPtr(lexical, semantic float64) *ranking.Weights {
	return &ranking.Weights{Lexical: lexical, Semantic: semantic}
}
