package ranking

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// NormalizationMethod selects how raw per-strategy scores are mapped onto [0, 1].
type NormalizationMethod string

// Supported normalization methods.
const (
	NormalizeMinMax NormalizationMethod = "min_max"
	NormalizeMax    NormalizationMethod = "max"
)

// RecencyConfig configures exponential recency decay.
type RecencyConfig struct {
	Enabled       bool    `koanf:"enabled" json:"enabled"`
	HalfLifeDays  float64 `koanf:"half_life_days" json:"half_life_days"`
	MinMultiplier float64 `koanf:"min_multiplier" json:"min_multiplier"`
	MaxMultiplier float64 `koanf:"max_multiplier" json:"max_multiplier"`
}

// FeedbackConfig configures the bounded feedback boost.
type FeedbackConfig struct {
	Enabled  bool    `koanf:"enabled" json:"enabled"`
	Weight   float64 `koanf:"weight" json:"weight"`
	MaxScore float64 `koanf:"max_score" json:"max_score"`
}

// ScopeConfig maps a visibility value to an additive bonus.
type ScopeConfig struct {
	Enabled bool               `koanf:"enabled" json:"enabled"`
	Bonus   map[string]float64 `koanf:"bonus" json:"bonus"`
}

// RerankerConfig reserves a slot for a learned reranker.
type RerankerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
}

// Config is the ranking configuration. It is shared read-only between
// requests; use Clone before modifying a copy.
type Config struct {
	Version string `koanf:"version" json:"version"`

	Weights                Weights `koanf:"weights" json:"weights"`
	AllowWeightOverride    bool    `koanf:"allow_weight_override" json:"allow_weight_override"`
	LegacyOverrideSentinel bool    `koanf:"legacy_override_sentinel" json:"legacy_override_sentinel"`

	Normalization NormalizationMethod `koanf:"normalization" json:"normalization"`
	MinScoreFloor float64             `koanf:"min_score_floor" json:"min_score_floor"`

	Recency  RecencyConfig  `koanf:"recency" json:"recency"`
	Feedback FeedbackConfig `koanf:"feedback" json:"feedback"`
	Scope    ScopeConfig    `koanf:"scope" json:"scope"`
	Reranker RerankerConfig `koanf:"reranker" json:"reranker"`

	// Retrieval tunables.
	CandidateMultiplier int           `koanf:"candidate_multiplier" json:"candidate_multiplier"`
	LexicalMinScore     float64       `koanf:"lexical_min_score" json:"lexical_min_score"`
	SemanticThreshold   float64       `koanf:"semantic_threshold" json:"semantic_threshold"`
	RetrieverTimeout    time.Duration `koanf:"retriever_timeout" json:"retriever_timeout"`
}

// DefaultConfig returns the default ranking configuration.
//
// Hybrid formula: base = lexical*0.6 + semantic*0.4, followed by
// recency decay (30 day half-life, floor 0.1), feedback (±0.05 at ±100)
// and a scope bonus (personal +0.05, organization +0.02).
func DefaultConfig() Config {
	return Config{
		Version:                "1",
		Weights:                Weights{Lexical: 0.6, Semantic: 0.4},
		AllowWeightOverride:    true,
		LegacyOverrideSentinel: true,
		Normalization:          NormalizeMinMax,
		MinScoreFloor:          0,
		Recency: RecencyConfig{
			Enabled:       true,
			HalfLifeDays:  30,
			MinMultiplier: 0.1,
			MaxMultiplier: 1.0,
		},
		Feedback: FeedbackConfig{
			Enabled:  true,
			Weight:   0.05,
			MaxScore: 100,
		},
		Scope: ScopeConfig{
			Enabled: true,
			Bonus: map[string]float64{
				"personal":     0.05,
				"organization": 0.02,
				"public":       0,
			},
		},
		Reranker:            RerankerConfig{Enabled: false},
		CandidateMultiplier: 2,
		LexicalMinScore:     0,
		SemanticThreshold:   0.3,
		RetrieverTimeout:    3 * time.Second,
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	if c.Scope.Bonus != nil {
		out.Scope.Bonus = make(map[string]float64, len(c.Scope.Bonus))
		for k, v := range c.Scope.Bonus {
			out.Scope.Bonus[k] = v
		}
	}
	return out
}

// Sanitize replaces invalid values with safe defaults in place and returns a
// message for every correction it made.
func (c *Config) Sanitize() []string {
	d := DefaultConfig()
	var fixes []string
	fix := func(format string, args ...any) {
		fixes = append(fixes, fmt.Sprintf(format, args...))
	}

	if invalid(c.Weights.Lexical) || c.Weights.Lexical < 0 {
		fix("weights.lexical %v is negative or not a number, using 0", c.Weights.Lexical)
		c.Weights.Lexical = 0
	}
	if invalid(c.Weights.Semantic) || c.Weights.Semantic < 0 {
		fix("weights.semantic %v is negative or not a number, using 0", c.Weights.Semantic)
		c.Weights.Semantic = 0
	}

	switch c.Normalization {
	case NormalizeMinMax, NormalizeMax:
	default:
		fix("normalization %q is unknown, using %q", c.Normalization, NormalizeMinMax)
		c.Normalization = NormalizeMinMax
	}

	if invalid(c.MinScoreFloor) {
		fix("min_score_floor is not a number, using %v", d.MinScoreFloor)
		c.MinScoreFloor = d.MinScoreFloor
	}

	if invalid(c.Recency.HalfLifeDays) || c.Recency.HalfLifeDays <= 0 {
		fix("recency.half_life_days %v must be positive, using %v", c.Recency.HalfLifeDays, d.Recency.HalfLifeDays)
		c.Recency.HalfLifeDays = d.Recency.HalfLifeDays
	}
	if invalid(c.Recency.MinMultiplier) || c.Recency.MinMultiplier < 0 {
		fix("recency.min_multiplier %v must be >= 0, using %v", c.Recency.MinMultiplier, d.Recency.MinMultiplier)
		c.Recency.MinMultiplier = d.Recency.MinMultiplier
	}
	if invalid(c.Recency.MaxMultiplier) || c.Recency.MaxMultiplier <= 0 {
		fix("recency.max_multiplier %v must be positive, using %v", c.Recency.MaxMultiplier, d.Recency.MaxMultiplier)
		c.Recency.MaxMultiplier = d.Recency.MaxMultiplier
	}
	if c.Recency.MinMultiplier > c.Recency.MaxMultiplier {
		fix("recency.min_multiplier %v exceeds max_multiplier %v, swapping", c.Recency.MinMultiplier, c.Recency.MaxMultiplier)
		c.Recency.MinMultiplier, c.Recency.MaxMultiplier = c.Recency.MaxMultiplier, c.Recency.MinMultiplier
	}

	if invalid(c.Feedback.Weight) {
		fix("feedback.weight is not a number, using %v", d.Feedback.Weight)
		c.Feedback.Weight = d.Feedback.Weight
	}
	if invalid(c.Feedback.MaxScore) || c.Feedback.MaxScore <= 0 {
		fix("feedback.max_score %v must be positive, using %v", c.Feedback.MaxScore, d.Feedback.MaxScore)
		c.Feedback.MaxScore = d.Feedback.MaxScore
	}

	if c.Scope.Bonus == nil {
		c.Scope.Bonus = map[string]float64{}
	}
	for k, v := range c.Scope.Bonus {
		if invalid(v) {
			fix("scope.bonus.%s is not a number, using 0", k)
			c.Scope.Bonus[k] = 0
		}
	}

	if c.CandidateMultiplier < 1 {
		fix("candidate_multiplier %d must be >= 1, using %d", c.CandidateMultiplier, d.CandidateMultiplier)
		c.CandidateMultiplier = d.CandidateMultiplier
	}
	if invalid(c.LexicalMinScore) || c.LexicalMinScore < 0 {
		fix("lexical_min_score %v must be >= 0, using 0", c.LexicalMinScore)
		c.LexicalMinScore = 0
	}
	if invalid(c.SemanticThreshold) || c.SemanticThreshold < -1 || c.SemanticThreshold > 1 {
		fix("semantic_threshold %v must be within [-1, 1], using %v", c.SemanticThreshold, d.SemanticThreshold)
		c.SemanticThreshold = d.SemanticThreshold
	}
	if c.RetrieverTimeout <= 0 {
		fix("retriever_timeout %v must be positive, using %v", c.RetrieverTimeout, d.RetrieverTimeout)
		c.RetrieverTimeout = d.RetrieverTimeout
	}

	return fixes
}

func invalid(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// LoadConfig loads the ranking configuration from a YAML or JSON file.
// Keys present in the file override DefaultConfig; everything else keeps its
// default. Invalid values are corrected and logged.
//
// If the file can't be read or parsed, the defaults are returned together
// with the error so callers can keep serving.
func LoadConfig(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if path == "" {
		return defaults, nil
	}

	k := koanf.New(".")
	// The YAML parser also accepts JSON documents.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		logger.Warn("failed to load ranking config, using defaults",
			"path", path,
			"error", err)
		return defaults, fmt.Errorf("failed to load ranking config: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		logger.Warn("failed to parse ranking config, using defaults",
			"path", path,
			"error", err)
		return defaults, fmt.Errorf("failed to parse ranking config: %w", err)
	}

	for _, msg := range cfg.Sanitize() {
		logger.Warn("corrected invalid ranking config value", "path", path, "correction", msg)
	}
	logConfigOverrides(logger, defaults, cfg)

	return cfg, nil
}

// logConfigOverrides logs which values differ from the defaults.
func logConfigOverrides(logger *slog.Logger, defaults, loaded Config) {
	var overrides []string
	add := func(name string, from, to any) {
		overrides = append(overrides, fmt.Sprintf("%s: %v -> %v", name, from, to))
	}

	if loaded.Weights != defaults.Weights {
		add("weights", defaults.Weights, loaded.Weights)
	}
	if loaded.AllowWeightOverride != defaults.AllowWeightOverride {
		add("allow_weight_override", defaults.AllowWeightOverride, loaded.AllowWeightOverride)
	}
	if loaded.LegacyOverrideSentinel != defaults.LegacyOverrideSentinel {
		add("legacy_override_sentinel", defaults.LegacyOverrideSentinel, loaded.LegacyOverrideSentinel)
	}
	if loaded.Normalization != defaults.Normalization {
		add("normalization", defaults.Normalization, loaded.Normalization)
	}
	if loaded.MinScoreFloor != defaults.MinScoreFloor {
		add("min_score_floor", defaults.MinScoreFloor, loaded.MinScoreFloor)
	}
	if loaded.Recency != defaults.Recency {
		add("recency", defaults.Recency, loaded.Recency)
	}
	if loaded.Feedback != defaults.Feedback {
		add("feedback", defaults.Feedback, loaded.Feedback)
	}
	if loaded.Scope.Enabled != defaults.Scope.Enabled {
		add("scope.enabled", defaults.Scope.Enabled, loaded.Scope.Enabled)
	}
	for k, v := range loaded.Scope.Bonus {
		if dv, ok := defaults.Scope.Bonus[k]; !ok || dv != v {
			add("scope.bonus."+k, dv, v)
		}
	}
	if loaded.Reranker != defaults.Reranker {
		add("reranker", defaults.Reranker, loaded.Reranker)
	}
	if loaded.CandidateMultiplier != defaults.CandidateMultiplier {
		add("candidate_multiplier", defaults.CandidateMultiplier, loaded.CandidateMultiplier)
	}
	if loaded.LexicalMinScore != defaults.LexicalMinScore {
		add("lexical_min_score", defaults.LexicalMinScore, loaded.LexicalMinScore)
	}
	if loaded.SemanticThreshold != defaults.SemanticThreshold {
		add("semantic_threshold", defaults.SemanticThreshold, loaded.SemanticThreshold)
	}
	if loaded.RetrieverTimeout != defaults.RetrieverTimeout {
		add("retriever_timeout", defaults.RetrieverTimeout, loaded.RetrieverTimeout)
	}

	if len(overrides) > 0 {
		logger.Info("loaded ranking config with overrides",
			"version", loaded.Version,
			"overrides", overrides)
	} else {
		logger.Info("loaded ranking config with default values", "version", loaded.Version)
	}
}
