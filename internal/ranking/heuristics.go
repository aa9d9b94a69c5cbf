package ranking

import (
	"math"
	"time"

	"github.com/onnwee/recall/internal/memory"
)

// Signals are the record attributes read by the heuristic adjusters.
type Signals struct {
	CreatedAt     time.Time
	FeedbackScore int
	Visibility    memory.Visibility
}

// SignalsOf extracts the heuristic inputs from a record.
func SignalsOf(r memory.Record) Signals {
	return Signals{
		CreatedAt:     r.CreatedAt,
		FeedbackScore: r.FeedbackScore,
		Visibility:    r.Visibility,
	}
}

// RecencyMultiplier returns 0.5^(age/half-life) clamped to
// [MinMultiplier, MaxMultiplier]. Unknown and future timestamps are treated
// as brand new.
func RecencyMultiplier(createdAt, now time.Time, cfg RecencyConfig) float64 {
	if createdAt.IsZero() || createdAt.After(now) || cfg.HalfLifeDays <= 0 {
		return clamp(1.0, cfg.MinMultiplier, cfg.MaxMultiplier)
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	m := math.Pow(0.5, ageDays/cfg.HalfLifeDays)
	return clamp(m, cfg.MinMultiplier, cfg.MaxMultiplier)
}

// RecencyAdjustment is the additive form of the multiplier: base*(m-1).
func RecencyAdjustment(base, multiplier float64) float64 {
	return base * (multiplier - 1)
}

// FeedbackAdjustment returns clamp(score/max_score, -1, 1) * weight.
func FeedbackAdjustment(score int, cfg FeedbackConfig) float64 {
	if cfg.MaxScore <= 0 {
		return 0
	}
	return clamp(float64(score)/cfg.MaxScore, -1, 1) * cfg.Weight
}

// ScopeAdjustment looks up the bonus for v; unknown values get 0.
func ScopeAdjustment(v memory.Visibility, cfg ScopeConfig) float64 {
	return cfg.Bonus[string(v)]
}

// RerankerAdjustment is the reserved reranker slot. No reranker is wired in,
// so it contributes nothing whether or not it is enabled.
func RerankerAdjustment(_ Signals, _ RerankerConfig) float64 {
	return 0
}

// Adjust applies recency, feedback, scope and reranker adjustments, in that
// order, to b.Base and fills in the remaining breakdown fields. Disabled
// heuristics contribute exactly 0.
func Adjust(b ScoreBreakdown, sig Signals, cfg Config, now time.Time) ScoreBreakdown {
	b.RecencyMultiplier = 1
	b.Recency, b.Feedback, b.Scope, b.Reranker = 0, 0, 0, 0

	if cfg.Recency.Enabled {
		b.RecencyMultiplier = RecencyMultiplier(sig.CreatedAt, now, cfg.Recency)
		b.Recency = RecencyAdjustment(b.Base, b.RecencyMultiplier)
	}
	if cfg.Feedback.Enabled {
		b.Feedback = FeedbackAdjustment(sig.FeedbackScore, cfg.Feedback)
	}
	if cfg.Scope.Enabled {
		b.Scope = ScopeAdjustment(sig.Visibility, cfg.Scope)
	}
	if cfg.Reranker.Enabled {
		b.Reranker = RerankerAdjustment(sig, cfg.Reranker)
	}

	b.Floor = cfg.MinScoreFloor
	b.Final = math.Max(cfg.MinScoreFloor, b.Adjusted())
	return b
}
