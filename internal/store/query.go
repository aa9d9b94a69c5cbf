package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/onnwee/recall/internal/memory"
)

// recordColumns are the columns scanned by scanRecord, in order.
const recordColumns = `id, owner_id, organization_id, conversation_id, agent_id,
		       content, context, feedback_score, visibility, created_at`

// queryBuilder accumulates WHERE conditions and positional arguments.
type queryBuilder struct {
	conditions []string
	args       []any
}

// arg appends a positional argument and returns its placeholder.
func (qb *queryBuilder) arg(v any) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

func (qb *queryBuilder) where(condition string) {
	qb.conditions = append(qb.conditions, condition)
}

// addFilters adds an equality condition for every non-empty filter field.
func (qb *queryBuilder) addFilters(f memory.Filters) {
	if f.OwnerID != "" {
		qb.where("owner_id = " + qb.arg(f.OwnerID))
	}
	if f.OrganizationID != "" {
		qb.where("organization_id = " + qb.arg(f.OrganizationID))
	}
	if f.ConversationID != "" {
		qb.where("conversation_id = " + qb.arg(f.ConversationID))
	}
	if f.AgentID != "" {
		qb.where("agent_id = " + qb.arg(f.AgentID))
	}
}

// addAccess translates the access filter into SQL. A filter that grants
// nothing matches no rows.
func (qb *queryBuilder) addAccess(a memory.AccessFilter) {
	if a.Unrestricted {
		return
	}

	var scopes []string
	if a.UserID != "" {
		scopes = append(scopes, "(visibility = 'personal' AND owner_id = "+qb.arg(a.UserID)+")")
	}
	if orgs := nonEmpty(a.OrganizationIDs); len(orgs) > 0 {
		scopes = append(scopes, "(visibility = 'organization' AND organization_id = ANY("+qb.arg(pq.Array(orgs))+"))")
	}
	if a.IncludePublic {
		scopes = append(scopes, "visibility = 'public'")
	}

	if len(scopes) == 0 {
		qb.where("FALSE")
		return
	}
	qb.where("(" + strings.Join(scopes, " OR ") + ")")
}

// addTerms adds one ILIKE condition per term, joined with AND or OR.
func (qb *queryBuilder) addTerms(terms []string, matchAll bool) {
	var parts []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		p := qb.arg(likePattern(term))
		parts = append(parts, fmt.Sprintf("(content ILIKE %[1]s OR context ILIKE %[1]s OR id::text ILIKE %[1]s)", p))
	}
	if len(parts) == 0 {
		qb.where("FALSE")
		return
	}
	joiner := " OR "
	if matchAll {
		joiner = " AND "
	}
	qb.where("(" + strings.Join(parts, joiner) + ")")
}

func (qb *queryBuilder) whereClause() string {
	if len(qb.conditions) == 0 {
		return "TRUE"
	}
	return strings.Join(qb.conditions, " AND ")
}

// likePattern wraps term in % wildcards, escaping LIKE metacharacters.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
