// Package embedding turns query text into vectors for semantic search.
//
// Providers are optional: the Disabled provider reports Enabled() == false
// and the search engine degrades to keyword matching without calling it.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by providers that are not configured.
var ErrDisabled = errors.New("embedding provider disabled")

// ErrEmptyEmbedding is returned when a provider answers with no vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Provider produces embedding vectors.
type Provider interface {
	// Enabled reports whether Embed can be called.
	Enabled() bool
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Disabled is the provider used when no embedding backend is configured.
type Disabled struct{}

// Enabled implements Provider.
func (Disabled) Enabled() bool { return false }

// Embed implements Provider and always returns ErrDisabled.
func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrDisabled
}

// Provider names accepted by Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderDisabled = "disabled"
)

// Config selects and configures the embedding provider.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Dimensions        int
	Timeout           time.Duration
	RequestsPerMinute int
	CacheTTL          time.Duration
}

// New builds the provider described by cfg. When rdb is non-nil and
// cfg.CacheTTL is positive, the provider is wrapped in a Redis cache.
func New(cfg Config, rdb redis.Cmdable, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var p Provider
	switch cfg.Provider {
	case "", ProviderDisabled:
		logger.Info("embedding provider disabled")
		return Disabled{}, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key")
		}
		p = NewOpenAIProvider(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if rdb != nil && cfg.CacheTTL > 0 {
		p = NewCachedProvider(p, NewRedisCache(rdb), modelOrDefault(cfg.Model), cfg.CacheTTL, logger)
	}

	logger.Info("embedding provider configured",
		"provider", cfg.Provider,
		"model", modelOrDefault(cfg.Model),
		"cache", rdb != nil && cfg.CacheTTL > 0)
	return p, nil
}
