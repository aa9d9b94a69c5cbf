package ranking

import "math"

// Weights are the blend weights for the lexical and semantic signals.
type Weights struct {
	Lexical  float64 `koanf:"lexical" json:"lexical"`
	Semantic float64 `koanf:"semantic" json:"semantic"`
}

// NoOverrideWeights is the pair older clients send when they do not mean to
// override anything. It is treated as "no override" while
// Config.LegacyOverrideSentinel is set and the configured defaults differ.
var NoOverrideWeights = Weights{Lexical: 0.7, Semantic: 0.3}

// Normalized returns w scaled so both weights sum to 1. Negative values count
// as 0; if nothing is left the weights are split evenly.
func (w Weights) Normalized() Weights {
	l, s := nonNegative(w.Lexical), nonNegative(w.Semantic)
	total := l + s
	if total <= 0 || math.IsInf(total, 0) {
		return Weights{Lexical: 0.5, Semantic: 0.5}
	}
	return Weights{Lexical: l / total, Semantic: s / total}
}

// ResolveWeights picks the weights for a hybrid request.
//
//   - no override, or overrides disabled: configured weights
//   - override equal to NoOverrideWeights (legacy clients): configured weights
//   - otherwise the override, negative values clamped to 0
//
// The result is always normalized to sum to 1.
func ResolveWeights(cfg Config, override *Weights) Weights {
	w := cfg.Weights
	if override != nil && cfg.AllowWeightOverride && !isLegacySentinel(cfg, *override) {
		w = Weights{
			Lexical:  nonNegative(override.Lexical),
			Semantic: nonNegative(override.Semantic),
		}
	}
	return w.Normalized()
}

func isLegacySentinel(cfg Config, w Weights) bool {
	return cfg.LegacyOverrideSentinel && w == NoOverrideWeights && cfg.Weights != NoOverrideWeights
}

func nonNegative(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return f
}
