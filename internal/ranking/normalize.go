package ranking

import "math"

// Normalize maps raw scores onto [0, 1] with the given method.
//
// min_max: (s - min) / (max - min). When every score is equal the result is
// 1.0 for positive scores and 0.0 otherwise.
// max: s / max, or 0 for all when max <= 0.
//
// Non-finite scores map to 0 and do not take part in min or max. Unknown
// methods fall back to min_max. The input map is not modified.
func Normalize(method NormalizationMethod, scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		if !finite(s) {
			continue
		}
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	for id, s := range scores {
		if !finite(s) {
			out[id] = 0
			continue
		}
		switch method {
		case NormalizeMax:
			if hi <= 0 {
				out[id] = 0
			} else {
				out[id] = clamp(s/hi, 0, 1)
			}
		default:
			switch {
			case hi == lo && hi > 0:
				out[id] = 1
			case hi == lo:
				out[id] = 0
			default:
				out[id] = clamp((s-lo)/(hi-lo), 0, 1)
			}
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
