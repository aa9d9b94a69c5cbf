// Package health provides readiness checks for the service's backing dependencies.
package health

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

// DBChecker implements health checking for the PostgreSQL memory store.
type DBChecker struct {
	db Pinger
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db Pinger) *DBChecker {
	return &DBChecker{db: db}
}

// Name implements Checker.
func (d *DBChecker) Name() string { return "database" }

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// RedisChecker implements health checking for the Redis instance backing the
// embedding cache and the shared rate limiter.
type RedisChecker struct {
	client redis.Cmdable
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.Cmdable) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name implements Checker.
func (r *RedisChecker) Name() string { return "redis" }

// HealthCheck sends a PING command.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
