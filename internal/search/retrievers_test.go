package search

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/onnwee/recall/internal/embedding"
	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/store"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"basic", StrategyBasic},
		{"fulltext", StrategyFulltext},
		{"semantic", StrategySemantic},
		{"hybrid", StrategyHybrid},
		{" Hybrid ", StrategyHybrid},
		{"", StrategyBasic},
		{"vector", StrategyBasic},
	}
	for _, tt := range tests {
		if got := ParseStrategy(tt.in); got != tt.want {
			t.Errorf("ParseStrategy(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{7, 7},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestIsAdvancedQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"database timeout", false},
		{"database OR timeout", true},
		{"database AND timeout", true},
		{"NOT timeout", true},
		{"database -postgres", true},
		{`"connection reset"`, true},
		{"pre-commit hook", false},
		{"a - b", false},
		{"or and not", false},
	}
	for _, tt := range tests {
		if got := isAdvancedQuery(tt.query); got != tt.want {
			t.Errorf("isAdvancedQuery(%q): expected %v, got %v", tt.query, tt.want, got)
		}
	}
}

func TestFallbackRetriever_RankScores(t *testing.T) {
	st := newFakeStore()
	st.terms = []memory.Record{
		rec("a", memory.VisibilityPersonal),
		rec("b", memory.VisibilityPersonal),
		rec("c", memory.VisibilityPersonal),
	}
	r := newRetrievers(st, embedding.Disabled{})

	got, err := r.fallback.Search(context.Background(), Request{Query: "deploy failed"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{1, 0.75, 0.5}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, c := range got {
		if !almostEqual(c.Score, want[i]) {
			t.Errorf("candidate %d: expected score %v, got %v", i, want[i], c.Score)
		}
		if c.Score <= 0 || c.Score > 1 {
			t.Errorf("candidate %d: score %v outside (0,1]", i, c.Score)
		}
		if c.RawScores[SourceFallback] != c.Score {
			t.Errorf("candidate %d: expected raw fallback score %v, got %v", i, c.Score, c.RawScores[SourceFallback])
		}
	}

	if len(st.termCalls) != 1 {
		t.Fatalf("expected 1 term query, got %d", len(st.termCalls))
	}
	if terms := st.termCalls[0].Terms; !reflect.DeepEqual(terms, []string{"deploy", "failed"}) {
		t.Errorf("expected terms split from the query, got %v", terms)
	}
}

func TestFallbackRetriever_ExplicitTerms(t *testing.T) {
	st := newFakeStore()
	r := newRetrievers(st, embedding.Disabled{})

	req := Request{Query: "ignored words", Terms: []string{" redis ", "", "cache"}, MatchAll: true}
	if _, err := r.fallback.Search(context.Background(), req, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := st.termCalls[0]
	if !reflect.DeepEqual(q.Terms, []string{"redis", "cache"}) {
		t.Errorf("expected explicit terms [redis cache], got %v", q.Terms)
	}
	if !q.MatchAll {
		t.Error("expected MatchAll to be passed through")
	}
	if q.Limit != 5 {
		t.Errorf("expected limit 5, got %d", q.Limit)
	}
}

func TestFallbackRetriever_StoreError(t *testing.T) {
	st := newFakeStore()
	st.termErr = errors.New("connection refused")
	r := newRetrievers(st, embedding.Disabled{})

	if _, err := r.fallback.Retrieve(context.Background(), Request{Query: "x"}, plainConfig()); err == nil {
		t.Error("expected an error when the fallback store query fails")
	}
}

func TestLexicalRetriever_Fulltext(t *testing.T) {
	st := newFakeStore()
	st.lexical = []store.ScoredRecord{
		scored(rec("a", memory.VisibilityPublic), 0.8),
		scored(rec("b", memory.VisibilityPublic), 0.3),
	}
	r := newRetrievers(st, embedding.Disabled{})

	resp, err := r.lexical.Retrieve(context.Background(), Request{Query: "database OR timeout", Limit: 5}, plainConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Metadata.SearchType != SearchTypeFulltext {
		t.Errorf("expected search type %q, got %q", SearchTypeFulltext, resp.Metadata.SearchType)
	}
	if resp.Metadata.FallbackReason != nil {
		t.Errorf("expected no fallback reason, got %q", *resp.Metadata.FallbackReason)
	}
	if got := ids(resp.Results); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}
	if !st.lexicalCalls[0].Advanced {
		t.Error("expected an OR query to use advanced parsing")
	}
	if resp.Metadata.Counts.Lexical != 2 {
		t.Errorf("expected lexical count 2, got %d", resp.Metadata.Counts.Lexical)
	}
}

func TestLexicalRetriever_Degradation(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fakeStore)
		wantReason string
	}{
		{
			name:       "unsupported capability",
			setup:      func(s *fakeStore) { s.caps.Lexical = false },
			wantReason: ReasonFulltextUnsupported,
		},
		{
			name:       "store reports unsupported",
			setup:      func(s *fakeStore) { s.lexicalErr = store.ErrUnsupported },
			wantReason: ReasonFulltextUnsupported,
		},
		{
			name:       "query failure",
			setup:      func(s *fakeStore) { s.lexicalErr = errors.New("syntax error in tsquery") },
			wantReason: ReasonFulltextFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.terms = []memory.Record{rec("f", memory.VisibilityPublic)}
			tt.setup(st)
			r := newRetrievers(st, embedding.Disabled{})

			resp, err := r.lexical.Retrieve(context.Background(), Request{Query: "timeout"}, plainConfig())
			if err != nil {
				t.Fatalf("expected degradation, got error: %v", err)
			}
			if resp.Metadata.SearchType != SearchTypeFulltextFallback {
				t.Errorf("expected search type %q, got %q", SearchTypeFulltextFallback, resp.Metadata.SearchType)
			}
			if resp.Metadata.FallbackReason == nil || *resp.Metadata.FallbackReason != tt.wantReason {
				t.Errorf("expected fallback reason %q, got %v", tt.wantReason, resp.Metadata.FallbackReason)
			}
			if got := ids(resp.Results); !reflect.DeepEqual(got, []string{"f"}) {
				t.Errorf("expected fallback results [f], got %v", got)
			}
		})
	}
}

func TestSemanticRetriever_Ladder(t *testing.T) {
	match := []store.ScoredRecord{scored(rec("v", memory.VisibilityPublic), 0.9)}

	tests := []struct {
		name       string
		embedder   embedding.Provider
		setup      func(*fakeStore)
		wantReason string
	}{
		{
			name:       "provider disabled",
			embedder:   embedding.Disabled{},
			setup:      func(s *fakeStore) { s.vector = match },
			wantReason: ReasonEmbeddingDisabled,
		},
		{
			name:       "vector search unsupported",
			embedder:   fakeEmbedder{vec: []float32{1, 0}},
			setup:      func(s *fakeStore) { s.caps.Vector = false; s.vector = match },
			wantReason: ReasonVectorUnsupported,
		},
		{
			name:       "embedding error",
			embedder:   fakeEmbedder{err: errors.New("429 too many requests")},
			setup:      func(s *fakeStore) { s.vector = match },
			wantReason: ReasonEmbeddingFailed,
		},
		{
			name:       "empty embedding",
			embedder:   fakeEmbedder{vec: []float32{}},
			setup:      func(s *fakeStore) { s.vector = match },
			wantReason: ReasonEmbeddingFailed,
		},
		{
			name:       "vector query error",
			embedder:   fakeEmbedder{vec: []float32{1, 0}},
			setup:      func(s *fakeStore) { s.vectorErr = errors.New("operator does not exist") },
			wantReason: ReasonVectorQueryFailed,
		},
		{
			name:       "no matches",
			embedder:   fakeEmbedder{vec: []float32{1, 0}},
			setup:      func(s *fakeStore) {},
			wantReason: ReasonNoSemanticMatches,
		},
		{
			name:     "success",
			embedder: fakeEmbedder{vec: []float32{1, 0}},
			setup:    func(s *fakeStore) { s.vector = match },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.terms = []memory.Record{rec("f", memory.VisibilityPublic)}
			tt.setup(st)
			r := newRetrievers(st, tt.embedder)

			resp, err := r.semantic.Retrieve(context.Background(), Request{Query: "timeout"}, plainConfig())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if tt.wantReason == "" {
				if resp.Metadata.SearchType != SearchTypeSemantic {
					t.Errorf("expected search type %q, got %q", SearchTypeSemantic, resp.Metadata.SearchType)
				}
				if resp.Metadata.FallbackReason != nil {
					t.Errorf("expected no fallback reason, got %q", *resp.Metadata.FallbackReason)
				}
				if got := ids(resp.Results); !reflect.DeepEqual(got, []string{"v"}) {
					t.Errorf("expected [v], got %v", got)
				}
				return
			}

			if resp.Metadata.SearchType != SearchTypeSemanticFallback {
				t.Errorf("expected search type %q, got %q", SearchTypeSemanticFallback, resp.Metadata.SearchType)
			}
			if resp.Metadata.FallbackReason == nil || *resp.Metadata.FallbackReason != tt.wantReason {
				t.Errorf("expected fallback reason %q, got %v", tt.wantReason, resp.Metadata.FallbackReason)
			}
			if got := ids(resp.Results); !reflect.DeepEqual(got, []string{"f"}) {
				t.Errorf("expected fallback results [f], got %v", got)
			}
		})
	}
}

func TestSemanticRetriever_PassesThreshold(t *testing.T) {
	st := newFakeStore()
	st.vector = []store.ScoredRecord{scored(rec("v", memory.VisibilityPublic), 0.9)}
	r := newRetrievers(st, fakeEmbedder{vec: []float32{1, 0}})

	cfg := plainConfig()
	cfg.SemanticThreshold = 0.55
	if _, err := r.semantic.Retrieve(context.Background(), Request{Query: "q", Limit: 4}, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := st.vectorCalls[0]
	if q.Threshold != 0.55 {
		t.Errorf("expected threshold 0.55, got %v", q.Threshold)
	}
	if q.Limit != 4 {
		t.Errorf("expected limit 4, got %d", q.Limit)
	}
	if !reflect.DeepEqual(q.Vector, []float32{1, 0}) {
		t.Errorf("expected the query embedding to be passed, got %v", q.Vector)
	}
}

// A disabled provider must produce exactly what the fallback retriever
// produces for the same request.
func TestSemanticRetriever_DisabledMatchesFallback(t *testing.T) {
	st := newFakeStore()
	st.terms = []memory.Record{
		rec("a", memory.VisibilityPersonal),
		rec("b", memory.VisibilityOrganization),
		rec("c", memory.VisibilityPublic),
	}
	r := newRetrievers(st, embedding.Disabled{})
	req := Request{
		Query:   "database timeout",
		Filters: memory.Filters{ConversationID: "conv-1"},
		Limit:   2,
	}

	semantic, err := r.semantic.Retrieve(context.Background(), req, plainConfig())
	if err != nil {
		t.Fatalf("semantic: unexpected error: %v", err)
	}
	fallback, err := r.fallback.Retrieve(context.Background(), req, plainConfig())
	if err != nil {
		t.Fatalf("fallback: unexpected error: %v", err)
	}

	if semantic.Metadata.SearchType != SearchTypeSemanticFallback {
		t.Errorf("expected search type %q, got %q", SearchTypeSemanticFallback, semantic.Metadata.SearchType)
	}
	if semantic.Metadata.FallbackReason == nil || *semantic.Metadata.FallbackReason != ReasonEmbeddingDisabled {
		t.Errorf("expected fallback reason %q, got %v", ReasonEmbeddingDisabled, semantic.Metadata.FallbackReason)
	}
	if !reflect.DeepEqual(semantic.Results, fallback.Results) {
		t.Errorf("expected semantic results to equal fallback results\nsemantic: %+v\nfallback: %+v", semantic.Results, fallback.Results)
	}
}

func TestSemanticRetriever_CanceledContext(t *testing.T) {
	st := newFakeStore()
	r := newRetrievers(st, fakeEmbedder{vec: []float32{1, 0}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.semantic.Retrieve(ctx, Request{Query: "q"}, plainConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
