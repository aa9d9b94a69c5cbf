// Package main is the entry point for the recall search API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/recall/internal/api"
	"github.com/onnwee/recall/internal/auth"
	"github.com/onnwee/recall/internal/config"
	"github.com/onnwee/recall/internal/embedding"
	"github.com/onnwee/recall/internal/health"
	"github.com/onnwee/recall/internal/middleware"
	"github.com/onnwee/recall/internal/ranking"
	"github.com/onnwee/recall/internal/search"
	"github.com/onnwee/recall/internal/store"
	"github.com/onnwee/recall/internal/tracing"
)

const serviceName = "recall-api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Recall API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	env := config.DefaultEnv
	if cfg != nil {
		env = cfg.Env
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSamplingRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	var checkers []health.Checker
	if rdb != nil {
		defer rdb.Close()
		checkers = append(checkers, health.NewRedisChecker(rdb))
	}

	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		checkers = append(checkers, health.NewDBChecker(db))
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:          cfg.EmbeddingProvider,
		APIKey:            cfg.EmbeddingAPIKey,
		Model:             cfg.EmbeddingModel,
		BaseURL:           cfg.EmbeddingBaseURL,
		Dimensions:        cfg.EmbeddingDimensions,
		Timeout:           cfg.EmbeddingTimeout,
		RequestsPerMinute: cfg.EmbeddingRequestsPerMinute,
		CacheTTL:          cfg.EmbeddingCacheTTL,
	}, redisCmdable(rdb), logger)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	searchMetrics := search.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	if err := searchMetrics.Register(reg); err != nil {
		return fmt.Errorf("register search metrics: %w", err)
	}
	if err := httpMetrics.Register(reg); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	rankingConfig := ranking.NewFileProvider(cfg.RankingConfigPath, logger)
	engine := search.NewEngine(st, embedder, rankingConfig, searchMetrics, logger)
	// Load now so a broken ranking file shows up at startup rather than on the first query.
	if err := engine.ReloadConfig(); err != nil {
		logger.Warn("ranking config not loaded, serving defaults", "error", err)
	}
	go reloadOnHangup(ctx, engine, logger)

	routerCfg := api.RouterConfig{
		Search:      api.NewSearchHandlers(engine, logger),
		Health:      api.NewHealthHandlers(checkers...),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Tokens:      auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret),
		HTTPMetrics: httpMetrics,
		ServiceName: serviceName,
		Logger:      logger,
	}
	if cfg.SearchRateLimitPerMinute > 0 {
		routerCfg.RateLimit = middleware.SearchLimit(cfg.SearchRateLimitPerMinute)
		routerCfg.RateLimitStore = newRateLimitStore(ctx, rdb, httpMetrics)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("starting server", "port", cfg.Port, "store", cfg.Store, "embedding", cfg.EmbeddingProvider)
	return serve(ctx, server, ln, logger)
}

// serve runs srv on ln until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// openStore returns the configured memory store, and the database handle when
// the store is PostgreSQL.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, *sql.DB, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; memories are not persisted")
		return store.NewMemoryStore(store.Capabilities{Lexical: true, Vector: true}), nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	pg := store.NewPostgresStore(db, logger)
	if _, err := pg.DetectCapabilities(pingCtx); err != nil {
		logger.Warn("capability detection failed, search will use fallbacks", "error", err)
	}
	return pg, db, nil
}

func newRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// redisCmdable avoids handing a typed nil *redis.Client to an interface.
func redisCmdable(rdb *redis.Client) redis.Cmdable {
	if rdb == nil {
		return nil
	}
	return rdb
}

func newRateLimitStore(ctx context.Context, rdb *redis.Client, metrics *middleware.Metrics) middleware.RateLimitStore {
	if rdb != nil {
		return middleware.NewRedisRateLimitStore(rdb, metrics)
	}

	mem := middleware.NewInMemoryRateLimitStore()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mem.Cleanup()
			}
		}
	}()
	return mem
}

// reloadOnHangup reloads the ranking configuration on every SIGHUP.
func reloadOnHangup(ctx context.Context, engine *search.Engine, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := engine.ReloadConfig(); err != nil {
				logger.Error("ranking config reload failed, keeping previous config", "error", err)
			}
		}
	}
}
