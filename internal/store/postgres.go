package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/tracing"
)

const memoriesTable = "memories"

// PostgresStore implements Store on PostgreSQL. Lexical search uses the
// generated search_vector column; vector search requires the pgvector extension.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.RWMutex
	caps Capabilities
}

// NewPostgresStore creates a PostgresStore. Capabilities start disabled until
// DetectCapabilities (or SetCapabilities) is called.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// DetectCapabilities inspects the database for the full-text column and the
// pgvector extension and caches the result.
func (s *PostgresStore) DetectCapabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities

	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1 AND column_name = 'search_vector'
		)`, memoriesTable).Scan(&caps.Lexical)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to detect full-text support: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')
		   AND EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1 AND column_name = 'embedding'
		)`, memoriesTable).Scan(&caps.Vector)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to detect vector support: %w", err)
	}

	s.SetCapabilities(caps)
	s.logger.Info("detected store capabilities",
		"lexical", caps.Lexical,
		"vector", caps.Vector)
	return caps, nil
}

// SetCapabilities overrides the detected capabilities.
func (s *PostgresStore) SetCapabilities(caps Capabilities) {
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
}

// Capabilities implements Store.
func (s *PostgresStore) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// LexicalSearch implements Store using ts_rank over the search_vector column.
func (s *PostgresStore) LexicalSearch(ctx context.Context, q LexicalQuery) (results []ScoredRecord, err error) {
	if !s.Capabilities().Lexical {
		return nil, ErrUnsupported
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, memoriesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	tsquery := "plainto_tsquery"
	if q.Advanced {
		tsquery = "websearch_to_tsquery"
	}

	qb := &queryBuilder{}
	queryArg := qb.arg(q.Query)
	qb.where("search_vector @@ tsq")
	qb.addFilters(q.Filters)
	qb.addAccess(q.Access)
	if q.MinScore > 0 {
		qb.where("ts_rank(search_vector, tsq) >= " + qb.arg(q.MinScore))
	}

	query := fmt.Sprintf(`
		SELECT %s,
		       ts_rank(search_vector, tsq) AS score
		FROM %s, %s('english', %s) AS tsq
		WHERE %s
		ORDER BY score DESC, created_at DESC
		LIMIT %s`,
		recordColumns, memoriesTable, tsquery, queryArg, qb.whereClause(), qb.arg(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}
	defer rows.Close()

	return scanScored(rows)
}

// VectorSearch implements Store using the pgvector cosine distance operator.
func (s *PostgresStore) VectorSearch(ctx context.Context, q VectorQuery) (results []ScoredRecord, err error) {
	if !s.Capabilities().Vector {
		return nil, ErrUnsupported
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, memoriesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	qb := &queryBuilder{}
	vec := qb.arg(pgvector.NewVector(q.Vector))
	qb.where("embedding IS NOT NULL")
	qb.where(fmt.Sprintf("(embedding <=> %s) <= %s", vec, qb.arg(1-q.Threshold)))
	qb.addFilters(q.Filters)
	qb.addAccess(q.Access)

	query := fmt.Sprintf(`
		SELECT %s,
		       1 - (embedding <=> %s) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> %s ASC, created_at DESC
		LIMIT %s`,
		recordColumns, vec, memoriesTable, qb.whereClause(), vec, qb.arg(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	return scanScored(rows)
}

// TermSearch implements Store with ILIKE matching.
func (s *PostgresStore) TermSearch(ctx context.Context, q TermQuery) (records []memory.Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, memoriesTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	qb := &queryBuilder{}
	qb.addTerms(q.Terms, q.MatchAll)
	qb.addFilters(q.Filters)
	qb.addAccess(q.Access)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY created_at DESC, id ASC
		LIMIT %s`,
		recordColumns, memoriesTable, qb.whereClause(), qb.arg(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run term search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r memory.Record
		if err := rows.Scan(recordDest(&r)...); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return records, nil
}

// recordDest returns scan destinations matching recordColumns.
func recordDest(r *memory.Record) []any {
	return []any{
		&r.ID,
		&r.OwnerID,
		&r.OrganizationID,
		&r.ConversationID,
		&r.AgentID,
		&r.Content,
		&r.Context,
		&r.FeedbackScore,
		&r.Visibility,
		&r.CreatedAt,
	}
}

func scanScored(rows *sql.Rows) ([]ScoredRecord, error) {
	var results []ScoredRecord
	for rows.Next() {
		var sr ScoredRecord
		dest := append(recordDest(&sr.Record), &sr.Score)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return results, nil
}
