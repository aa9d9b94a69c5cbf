// Package ranking holds the scoring primitives shared by every search strategy:
// score normalization, weight resolution, heuristic adjustments and the
// ranking configuration they are tuned by.
//
// Basic Usage:
//
//	// Load configuration (typically at startup)
//	provider := ranking.NewFileProvider("configs/ranking.yaml", logger)
//	cfg := provider.Config()
//
//	// Normalize per-strategy scores and blend them
//	lexical := ranking.Normalize(cfg.Normalization, rawLexical)
//	semantic := ranking.Normalize(cfg.Normalization, rawSemantic)
//	weights := ranking.ResolveWeights(cfg, req.Weights)
//	base := lexical[id]*weights.Lexical + semantic[id]*weights.Semantic
//
//	// Apply recency, feedback and scope adjustments
//	breakdown := ranking.Adjust(ranking.ScoreBreakdown{Base: base}, signals, cfg, time.Now())
//	score := breakdown.Final
//
// All functions in this package are pure. They never mutate their inputs and
// never return errors; invalid configuration is corrected by Config.Sanitize
// when it is loaded.
//
// Configuration:
//
// The ranking configuration is read from a YAML (or JSON) file and merged over
// DefaultConfig, so partial files only override the keys they name. The
// ConfigProvider caches the loaded value and can be reloaded at runtime
// (the API server reloads it on SIGHUP).
package ranking
