package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/recall/internal/memory"
	"github.com/onnwee/recall/internal/middleware"
	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/search"
	"github.com/onnwee/recall/internal/validate"
)

// Request limits.
const (
	MaxRequestBodyBytes = 64 << 10
	MaxTerms            = 32
)

// Searcher runs ranked searches. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchHandlers holds dependencies for search HTTP handlers.
type SearchHandlers struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(searcher Searcher, logger *slog.Logger) *SearchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandlers{searcher: searcher, logger: logger}
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query    string           `json:"query"`
	Strategy string           `json:"strategy,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Filters  memory.Filters   `json:"filters"`
	Weights  *ranking.Weights `json:"weights,omitempty"`
	MinScore float64          `json:"min_score,omitempty"`
	Terms    []string         `json:"terms,omitempty"`
	MatchAll bool             `json:"match_all,omitempty"`
}

// Validate checks request bounds and normalizes identifiers and terms in place.
// Unknown strategies are not an error; the engine serves them with the basic
// strategy.
func (r *SearchRequest) Validate() error {
	if _, err := validate.SearchQuery(r.Query); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	switch {
	case r.Limit < 0:
		return errors.New("limit must not be negative")
	case r.MinScore < 0:
		return errors.New("min_score must not be negative")
	case r.Weights != nil && (r.Weights.Lexical < 0 || r.Weights.Semantic < 0):
		return errors.New("weights must not be negative")
	case len(r.Terms) > MaxTerms:
		return fmt.Errorf("at most %d terms are allowed", MaxTerms)
	}

	ids := []struct {
		name  string
		value *string
	}{
		{"filters.owner_id", &r.Filters.OwnerID},
		{"filters.organization_id", &r.Filters.OrganizationID},
		{"filters.conversation_id", &r.Filters.ConversationID},
		{"filters.agent_id", &r.Filters.AgentID},
	}
	for _, id := range ids {
		v, err := validate.Identifier(*id.value)
		if err != nil {
			return fmt.Errorf("%s: %w", id.name, err)
		}
		*id.value = v
	}

	for i, term := range r.Terms {
		v, err := validate.Term(term)
		if err != nil {
			return fmt.Errorf("terms[%d]: %w", i, err)
		}
		r.Terms[i] = v
	}
	return nil
}

// SearchResult is one ranked memory.
type SearchResult struct {
	ID             string                 `json:"id"`
	Content        string                 `json:"content"`
	Context        string                 `json:"context,omitempty"`
	OwnerID        string                 `json:"owner_id"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	AgentID        string                 `json:"agent_id,omitempty"`
	Visibility     memory.Visibility      `json:"visibility"`
	FeedbackScore  int                    `json:"feedback_score"`
	CreatedAt      time.Time              `json:"created_at"`
	Score          float64                `json:"score"`
	RawScores      map[string]float64     `json:"raw_scores"`
	Breakdown      ranking.ScoreBreakdown `json:"breakdown"`
	Explanation    string                 `json:"explanation"`
}

// SearchResponse is the body returned by POST /v1/search.
type SearchResponse struct {
	Results  []SearchResult  `json:"results"`
	Metadata search.Metadata `json:"metadata"`
}

// Search handles POST /v1/search. The caller's identity decides which memories
// are visible: their own personal memories, their organizations' shared
// memories, and public memories.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}

	var body SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, decodeErrorMessage(err))
		return
	}
	if err := body.Validate(); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	resp, err := h.searcher.Search(ctx, search.Request{
		Query:    body.Query,
		Filters:  body.Filters,
		Limit:    body.Limit,
		Strategy: body.Strategy,
		Weights:  body.Weights,
		MinScore: body.MinScore,
		Terms:    body.Terms,
		MatchAll: body.MatchAll,
		Access: memory.AccessFilter{
			UserID:          identity.UserID,
			OrganizationIDs: identity.OrganizationIDs,
			IncludePublic:   true,
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			h.logger.WarnContext(ctx, "search abandoned", "error", err)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeUnavailable, "Search did not complete in time")
			return
		}
		h.logger.ErrorContext(ctx, "search failed", "error", err, "strategy", body.Strategy)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
		return
	}

	writeJSON(w, ctx, http.StatusOK, toSearchResponse(resp))
}

func decodeErrorMessage(err error) string {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return fmt.Sprintf("request body must be at most %d bytes", MaxRequestBodyBytes)
	case errors.Is(err, io.EOF):
		return "request body is required"
	default:
		return "invalid JSON body: " + err.Error()
	}
}

func toSearchResponse(resp *search.Response) SearchResponse {
	results := make([]SearchResult, 0, len(resp.Results))
	for _, c := range resp.Results {
		raw := c.RawScores
		if raw == nil {
			raw = map[string]float64{}
		}
		results = append(results, SearchResult{
			ID:             c.Record.ID,
			Content:        c.Record.Content,
			Context:        c.Record.Context,
			OwnerID:        c.Record.OwnerID,
			OrganizationID: c.Record.OrganizationID,
			ConversationID: c.Record.ConversationID,
			AgentID:        c.Record.AgentID,
			Visibility:     c.Record.Visibility,
			FeedbackScore:  c.Record.FeedbackScore,
			CreatedAt:      c.Record.CreatedAt,
			Score:          c.Score,
			RawScores:      raw,
			Breakdown:      c.Breakdown,
			Explanation:    c.Explanation,
		})
	}
	return SearchResponse{Results: results, Metadata: resp.Metadata}
}
