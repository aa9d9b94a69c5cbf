package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded embeddings.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedProvider memoizes query embeddings. Cache failures are logged and
// never fail the request.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProvider wraps inner with cache.
func NewCachedProvider(inner Provider, cache Cache, model string, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{inner: inner, cache: cache, model: model, ttl: ttl, logger: logger}
}

// Enabled implements Provider.
func (p *CachedProvider) Enabled() bool { return p.inner.Enabled() }

// Embed implements Provider.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.inner.Enabled() {
		return nil, ErrDisabled
	}

	key := cacheKey(p.model, text)
	if b, err := p.cache.Get(ctx, key); err == nil {
		if vec, err := decodeVector(b); err == nil {
			return vec, nil
		}
		p.logger.Warn("discarding corrupt cached embedding", "key", key)
	} else if !errors.Is(err, ErrCacheMiss) {
		p.logger.Warn("embedding cache read failed", "error", err)
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, encodeVector(vec), p.ttl); err != nil {
		p.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "recall:emb:" + model + ":" + hex.EncodeToString(sum[:])
}

// encodeVector stores float32 values little-endian.
func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid encoded vector length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
