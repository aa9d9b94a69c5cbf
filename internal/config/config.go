// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage backend: postgres or memory
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT Authentication. The previous secret keeps tokens valid during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Ranking config file (YAML or JSON); empty means built-in defaults.
	RankingConfigPath string `koanf:"ranking_config_path"`

	// Embeddings
	EmbeddingProvider          string        `koanf:"embedding_provider"`
	EmbeddingAPIKey            string        `koanf:"embedding_api_key"`
	EmbeddingModel             string        `koanf:"embedding_model"`
	EmbeddingBaseURL           string        `koanf:"embedding_base_url"`
	EmbeddingDimensions        int           `koanf:"embedding_dimensions"`
	EmbeddingTimeout           time.Duration `koanf:"embedding_timeout"`
	EmbeddingRequestsPerMinute int           `koanf:"embedding_requests_per_minute"`
	EmbeddingCacheTTL          time.Duration `koanf:"embedding_cache_ttl"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`

	// Per-user search rate limit; 0 disables limiting.
	SearchRateLimitPerMinute int `koanf:"search_rate_limit_per_minute"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrMissingEmbeddingAPIKey = errors.New("EMBEDDING_API_KEY is required for the openai provider")
	ErrInvalidStore           = errors.New("STORE must be postgres or memory")
	ErrInvalidEmbedding       = errors.New("EMBEDDING_PROVIDER must be openai or disabled")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidNumber          = errors.New("value must be a valid number")
	ErrInvalidDuration        = errors.New("value must be a valid duration")
	ErrInvalidSamplingRate    = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
	ErrNegativeRateLimit      = errors.New("rate limits must not be negative")
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Default values for non-secret configuration.
const (
	DefaultPort                       = 8080
	DefaultEnv                        = "development"
	DefaultStore                      = StorePostgres
	DefaultEmbeddingProvider          = "disabled"
	DefaultEmbeddingModel             = "text-embedding-3-small"
	DefaultEmbeddingDimensions        = 1536
	DefaultEmbeddingTimeout           = 10 * time.Second
	DefaultEmbeddingRequestsPerMinute = 3000
	DefaultEmbeddingCacheTTL          = 24 * time.Hour
	DefaultTracingExporter            = "otlp-http"
	DefaultTracingSamplingRate        = 0.1
	DefaultSearchRateLimitPerMinute   = 120
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error
	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefaultMulti([]string{"RECALL_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		collect(fmt.Errorf("%w: %w", ErrInvalidPort, err))
	}

	dims, err := getEnvIntOrDefault("EMBEDDING_DIMENSIONS", k.Int("embedding_dimensions"), DefaultEmbeddingDimensions)
	collect(err)
	embedTimeout, err := getEnvDurationOrDefault("EMBEDDING_TIMEOUT", k.String("embedding_timeout"), DefaultEmbeddingTimeout)
	collect(err)
	embedRPM, err := getEnvIntOrDefault("EMBEDDING_REQUESTS_PER_MINUTE", k.Int("embedding_requests_per_minute"), DefaultEmbeddingRequestsPerMinute)
	collect(err)
	cacheTTL, err := getEnvDurationOrDefault("EMBEDDING_CACHE_TTL", k.String("embedding_cache_ttl"), DefaultEmbeddingCacheTTL)
	collect(err)
	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	collect(err)
	searchRPM, err := getEnvIntOrDefault("SEARCH_RATE_LIMIT_PER_MINUTE", k.Int("search_rate_limit_per_minute"), DefaultSearchRateLimitPerMinute)
	collect(err)

	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefaultMulti([]string{"RECALL_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		Store:             strings.ToLower(getEnvOrDefault("STORE", k.String("store"), DefaultStore)),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		RankingConfigPath: getEnvOrKoanf("RANKING_CONFIG_PATH", k, "ranking_config_path"),

		EmbeddingProvider:          strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", k.String("embedding_provider"), DefaultEmbeddingProvider)),
		EmbeddingAPIKey:            getEnvOrDefaultMulti([]string{"EMBEDDING_API_KEY", "OPENAI_API_KEY"}, k.String("embedding_api_key"), ""),
		EmbeddingModel:             getEnvOrDefault("EMBEDDING_MODEL", k.String("embedding_model"), DefaultEmbeddingModel),
		EmbeddingBaseURL:           getEnvOrKoanf("EMBEDDING_BASE_URL", k, "embedding_base_url"),
		EmbeddingDimensions:        dims,
		EmbeddingTimeout:           embedTimeout,
		EmbeddingRequestsPerMinute: embedRPM,
		EmbeddingCacheTTL:          cacheTTL,

		TracingEnabled:      getEnvBool("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:     getEnvOrDefaultMulti([]string{"TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, k.String("tracing_endpoint"), ""),
		TracingSamplingRate: samplingRate,
		TracingInsecure:     getEnvBool("TRACING_INSECURE", k, "tracing_insecure", false),

		SearchRateLimitPerMinute: searchRPM,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return defaultVal, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidNumber)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault parses a Go duration string ("10s", "24h") from the
// environment, then the koanf value, falling back to default.
func getEnvDurationOrDefault(envKey string, koanfVal string, defaultVal time.Duration) (time.Duration, error) {
	raw := getEnvOrDefault(envKey, koanfVal, "")
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a valid duration: %w", envKey, ErrInvalidDuration)
	}
	return d, nil
}

// getEnvBool reads a boolean flag; the environment wins over the file.
// Unrecognized environment values are ignored.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		result = true
	case "false", "0", "no", "off":
		result = false
	}
	return result
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrInvalidStore, c.Store))
	}

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	switch c.EmbeddingProvider {
	case "openai":
		if c.EmbeddingAPIKey == "" {
			errs = append(errs, ErrMissingEmbeddingAPIKey)
		}
	case "disabled", "":
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrInvalidEmbedding, c.EmbeddingProvider))
	}

	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}
	if c.EmbeddingRequestsPerMinute < 0 || c.SearchRateLimitPerMinute < 0 {
		errs = append(errs, ErrNegativeRateLimit)
	}

	return errs
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                          strconv.Itoa(c.Port),
		"env":                           c.Env,
		"store":                         c.Store,
		"database_url":                  maskDatabaseURL(c.DatabaseURL),
		"redis_url":                     maskDatabaseURL(c.RedisURL),
		"jwt_secret":                    maskSecret(c.JWTSecret),
		"jwt_previous_secret":           maskSecret(c.JWTPreviousSecret),
		"ranking_config_path":           c.RankingConfigPath,
		"embedding_provider":            c.EmbeddingProvider,
		"embedding_api_key":             maskAPIKey(c.EmbeddingAPIKey),
		"embedding_model":               c.EmbeddingModel,
		"embedding_base_url":            c.EmbeddingBaseURL,
		"embedding_dimensions":          strconv.Itoa(c.EmbeddingDimensions),
		"embedding_timeout":             c.EmbeddingTimeout.String(),
		"embedding_requests_per_minute": strconv.Itoa(c.EmbeddingRequestsPerMinute),
		"embedding_cache_ttl":           c.EmbeddingCacheTTL.String(),
		"tracing_enabled":               strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":              c.TracingExporter,
		"tracing_endpoint":              c.TracingEndpoint,
		"tracing_sampling_rate":         strconv.FormatFloat(c.TracingSamplingRate, 'f', -1, 64),
		"search_rate_limit_per_minute":  strconv.Itoa(c.SearchRateLimitPerMinute),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskAPIKey masks an API key, preserving a sk-/sk-proj- style prefix.
func maskAPIKey(s string) string {
	if s == "" {
		return "<not set>"
	}
	if i := strings.LastIndex(s, "-"); i > 0 && i < 12 && len(s) >= 16 {
		return s[:i+1] + "****"
	}
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
