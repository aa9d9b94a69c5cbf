package ranking

import (
	"log/slog"
	"sync"
)

// ConfigProvider caches the ranking configuration and allows it to be
// reloaded while requests are in flight. Readers always get a private copy.
type ConfigProvider struct {
	mu     sync.RWMutex
	cached *Config
	load   func() (Config, error)
	logger *slog.Logger
}

// NewFileProvider returns a provider that loads its configuration from path.
// An empty path serves DefaultConfig.
func NewFileProvider(path string, logger *slog.Logger) *ConfigProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigProvider{
		load:   func() (Config, error) { return LoadConfig(path, logger) },
		logger: logger,
	}
}

// NewStaticProvider returns a provider that always serves cfg (sanitized).
func NewStaticProvider(cfg Config) *ConfigProvider {
	cfg = cfg.Clone()
	cfg.Sanitize()
	return &ConfigProvider{
		load:   func() (Config, error) { return cfg.Clone(), nil },
		logger: slog.Default(),
	}
}

// Config returns the current configuration, loading it on first use.
func (p *ConfigProvider) Config() Config {
	p.mu.RLock()
	if p.cached != nil {
		cfg := p.cached.Clone()
		p.mu.RUnlock()
		return cfg
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	// Double-check after acquiring the write lock.
	if p.cached == nil {
		cfg, err := p.load()
		if err != nil {
			p.logger.Warn("ranking config unavailable, serving defaults", "error", err)
		}
		p.cached = &cfg
	}
	return p.cached.Clone()
}

// Reload loads the configuration again and swaps it in. On error the
// previously cached configuration is kept.
func (p *ConfigProvider) Reload() error {
	cfg, err := p.load()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.cached = &cfg
	p.mu.Unlock()

	p.logger.Info("ranking config reloaded", "version", cfg.Version)
	return nil
}

// Invalidate drops the cached configuration; the next Config call reloads it.
func (p *ConfigProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
