package ranking

import (
	"fmt"
	"strings"
)

// ScoreBreakdown records every term that went into a candidate's final score.
// Final can be reconstructed as max(Floor, Base+Recency+Feedback+Scope+Reranker)
// and Base as LexicalNormalized*Weights.Lexical + SemanticNormalized*Weights.Semantic
// for hybrid candidates.
type ScoreBreakdown struct {
	LexicalRaw         float64 `json:"lexical_raw"`
	LexicalNormalized  float64 `json:"lexical_normalized"`
	SemanticRaw        float64 `json:"semantic_raw"`
	SemanticNormalized float64 `json:"semantic_normalized"`
	Weights            Weights `json:"weights"`

	Base              float64 `json:"base"`
	RecencyMultiplier float64 `json:"recency_multiplier"`
	Recency           float64 `json:"recency"`
	Feedback          float64 `json:"feedback"`
	Scope             float64 `json:"scope"`
	Reranker          float64 `json:"reranker"`
	Floor             float64 `json:"floor"`
	Final             float64 `json:"final"`
}

// Adjusted is the base score plus every heuristic contribution, before the floor.
func (b ScoreBreakdown) Adjusted() float64 {
	return b.Base + b.Recency + b.Feedback + b.Scope + b.Reranker
}

// Explain renders a one-line human-readable description of the breakdown.
func (b ScoreBreakdown) Explain() string {
	var sb strings.Builder
	if b.Weights != (Weights{}) {
		fmt.Fprintf(&sb, "base %.4f = lexical %.4f×%.2f + semantic %.4f×%.2f",
			b.Base, b.LexicalNormalized, b.Weights.Lexical, b.SemanticNormalized, b.Weights.Semantic)
	} else {
		fmt.Fprintf(&sb, "base %.4f", b.Base)
	}
	fmt.Fprintf(&sb, "; recency %+.4f (×%.3f); feedback %+.4f; scope %+.4f; reranker %+.4f",
		b.Recency, b.RecencyMultiplier, b.Feedback, b.Scope, b.Reranker)
	if b.Final > b.Adjusted() {
		fmt.Fprintf(&sb, "; floored to %.4f", b.Floor)
	}
	fmt.Fprintf(&sb, "; final %.4f", b.Final)
	return sb.String()
}
