package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/onnwee/recall/internal/memory"
)

// MemoryStore is an in-memory Store. Lexical scoring approximates
// Postgres full-text matching: plain queries require every term, advanced
// queries understand OR, -term and quoted phrases.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]memory.Record
	caps      Capabilities
	dimension int
}

// NewMemoryStore creates an empty MemoryStore with the given capabilities.
func NewMemoryStore(caps Capabilities) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memory.Record),
		caps:    caps,
	}
}

// Add inserts or replaces records. Records without an ID get a new UUID.
// All embeddings must share the dimension of the first one stored.
func (s *MemoryStore) Add(records ...memory.Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if !r.Visibility.Valid() {
			return ids, fmt.Errorf("record %q: %w", r.ID, memory.ErrInvalidVisibility)
		}
		if r.HasEmbedding() {
			if s.dimension == 0 {
				s.dimension = len(r.Embedding)
			} else if len(r.Embedding) != s.dimension {
				return ids, fmt.Errorf("record %q has %d dimensions, expected %d: %w",
					r.ID, len(r.Embedding), s.dimension, ErrDimensionMismatch)
			}
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.records[r.ID] = r
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// SetCapabilities changes the advertised capabilities.
func (s *MemoryStore) SetCapabilities(caps Capabilities) {
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
}

// Capabilities implements Store.
func (s *MemoryStore) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// LexicalSearch implements Store. The score is the density of matched query
// terms in the record text.
func (s *MemoryStore) LexicalSearch(ctx context.Context, q LexicalQuery) ([]ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Capabilities().Lexical {
		return nil, ErrUnsupported
	}

	parsed := parseTextQuery(q.Query, q.Advanced)

	var results []ScoredRecord
	for _, r := range s.visible(q.Filters, q.Access) {
		tokens := tokenize(strings.ToLower(r.Content + " " + r.Context))
		if !parsed.matches(tokens) {
			continue
		}
		score := parsed.score(tokens)
		if q.MinScore > 0 && score < q.MinScore {
			continue
		}
		results = append(results, ScoredRecord{Record: r, Score: score})
	}

	sortScored(results, func(a, b ScoredRecord) bool { return a.Score > b.Score })
	return truncate(results, q.Limit), nil
}

// VectorSearch implements Store with exact cosine similarity.
func (s *MemoryStore) VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Capabilities().Vector {
		return nil, ErrUnsupported
	}

	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	if dim != 0 && len(q.Vector) != dim {
		return nil, fmt.Errorf("query has %d dimensions, expected %d: %w", len(q.Vector), dim, ErrDimensionMismatch)
	}

	var results []ScoredRecord
	for _, r := range s.visible(q.Filters, q.Access) {
		if !r.HasEmbedding() {
			continue
		}
		sim := cosineSimilarity(q.Vector, r.Embedding)
		if sim < q.Threshold {
			continue
		}
		results = append(results, ScoredRecord{Record: r, Score: sim})
	}

	sortScored(results, func(a, b ScoredRecord) bool { return a.Score > b.Score })
	return truncate(results, q.Limit), nil
}

// TermSearch implements Store.
func (s *MemoryStore) TermSearch(ctx context.Context, q TermQuery) ([]memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		if t = strings.ToLower(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}

	var matched []ScoredRecord
	for _, r := range s.visible(q.Filters, q.Access) {
		if matchTerms(r, terms, q.MatchAll) {
			matched = append(matched, ScoredRecord{Record: r})
		}
	}
	sortScored(matched, func(a, b ScoredRecord) bool { return false })
	matched = truncate(matched, q.Limit)

	records := make([]memory.Record, len(matched))
	for i, m := range matched {
		records[i] = m.Record
	}
	return records, nil
}

// visible returns a snapshot of the records passing filters and access.
func (s *MemoryStore) visible(f memory.Filters, a memory.AccessFilter) []memory.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.Record, 0, len(s.records))
	for _, r := range s.records {
		if f.Matches(r) && a.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}

func matchTerms(r memory.Record, terms []string, matchAll bool) bool {
	content := strings.ToLower(r.Content)
	secondary := strings.ToLower(r.Context)
	id := strings.ToLower(r.ID)

	for _, t := range terms {
		hit := strings.Contains(content, t) || strings.Contains(secondary, t) || strings.Contains(id, t)
		if hit && !matchAll {
			return true
		}
		if !hit && matchAll {
			return false
		}
	}
	return matchAll
}

// sortScored orders by primary, then most recent first, then ID.
func sortScored(results []ScoredRecord, primary func(a, b ScoredRecord) bool) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if primary(a, b) {
			return true
		}
		if primary(b, a) {
			return false
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// textQuery is a parsed lexical query: a disjunction of clauses.
type textQuery struct {
	clauses []textClause
	terms   []string
}

type textClause struct {
	required []string
	phrases  []string
	excluded []string
}

func parseTextQuery(query string, advanced bool) textQuery {
	query = strings.ToLower(query)
	if !advanced {
		terms := tokenize(query)
		return textQuery{clauses: []textClause{{required: terms}}, terms: terms}
	}

	var (
		tq      textQuery
		current textClause
	)
	flush := func() {
		if len(current.required)+len(current.phrases) > 0 {
			tq.clauses = append(tq.clauses, current)
		}
		current = textClause{}
	}

	rest := query
	for rest != "" {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			break
		}
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			var phrase string
			if end < 0 {
				phrase, rest = rest[1:], ""
			} else {
				phrase, rest = rest[1:end+1], rest[end+2:]
			}
			if words := tokenize(phrase); len(words) > 0 {
				current.phrases = append(current.phrases, strings.Join(words, " "))
				tq.terms = append(tq.terms, words...)
			}
			continue
		}

		word := rest
		if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
			word, rest = rest[:i], rest[i:]
		} else {
			rest = ""
		}

		switch {
		case word == "or":
			flush()
		case word == "and":
		case strings.HasPrefix(word, "-"):
			current.excluded = append(current.excluded, tokenize(word)...)
		default:
			words := tokenize(word)
			current.required = append(current.required, words...)
			tq.terms = append(tq.terms, words...)
		}
	}
	flush()
	return tq
}

func (tq textQuery) matches(tokens []string) bool {
	if len(tq.terms) == 0 {
		return false
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	normalized := " " + strings.Join(tokens, " ") + " "

	for _, c := range tq.clauses {
		ok := true
		for _, t := range c.required {
			if !set[t] {
				ok = false
				break
			}
		}
		for _, p := range c.phrases {
			if ok && !strings.Contains(normalized, " "+p+" ") {
				ok = false
			}
		}
		for _, t := range c.excluded {
			if ok && set[t] {
				ok = false
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (tq textQuery) score(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	wanted := make(map[string]bool, len(tq.terms))
	for _, t := range tq.terms {
		wanted[t] = true
	}
	hits := 0
	for _, t := range tokens {
		if wanted[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}
