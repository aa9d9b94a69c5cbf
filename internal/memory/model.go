// Package memory defines the retrievable memory record and the filters that
// restrict which records a search may consider.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Visibility is the access classification of a record.
type Visibility string

// Supported visibility scopes.
const (
	VisibilityPersonal     Visibility = "personal"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// ErrInvalidVisibility is returned when a visibility value is not one of the known scopes.
var ErrInvalidVisibility = errors.New("invalid visibility")

// Valid reports whether v is one of the three supported scopes.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPersonal, VisibilityOrganization, VisibilityPublic:
		return true
	}
	return false
}

// ParseVisibility parses a visibility string case-insensitively.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
	}
	return v, nil
}

// Record is the retrievable unit.
type Record struct {
	ID             string
	OwnerID        string
	OrganizationID string
	ConversationID string
	AgentID        string

	// Content is the primary text, Context the optional secondary text.
	Content string
	Context string

	// FeedbackScore is mutated by external feedback events; ranking only reads it.
	FeedbackScore int

	// CreatedAt is the zero time when unknown.
	CreatedAt time.Time

	Visibility Visibility

	// Embedding is nil when the record has not been embedded yet.
	Embedding []float32
}

// HasEmbedding reports whether the record carries a vector representation.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// Filters are optional equality filters applied by the store.
// Empty fields are ignored.
type Filters struct {
	OwnerID        string `json:"owner_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

// Matches reports whether r satisfies every non-empty filter field.
func (f Filters) Matches(r Record) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.OrganizationID != "" && r.OrganizationID != f.OrganizationID {
		return false
	}
	if f.ConversationID != "" && r.ConversationID != f.ConversationID {
		return false
	}
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	return true
}
