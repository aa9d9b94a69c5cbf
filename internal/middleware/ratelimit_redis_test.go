//go:build integration

package middleware

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis returns a client for REDIS_URL when set, otherwise for a throwaway container.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := setupRedis(t)
	store := NewRedisRateLimitStore(client, NewMetrics())
	// Pin the clock mid-window so the test cannot straddle a boundary.
	store.now = func() time.Time { return time.Now().Truncate(time.Minute).Add(10 * time.Second) }
	config := SearchLimit(5)
	ctx := context.Background()
	key := "itest-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	for i := 0; i < 5; i++ {
		allowed, remaining, _ := store.Allow(ctx, key, config)
		if !allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if remaining != 4-i {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 4-i, remaining)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, key, config)
	if allowed {
		t.Error("expected the 6th request to be blocked")
	}
	if remaining != 0 {
		t.Errorf("expected remaining 0, got %d", remaining)
	}
	if retryAfter != 50 {
		t.Errorf("expected retryAfter 50, got %d", retryAfter)
	}

	if allowed, _, _ := store.Allow(ctx, key+"-other", config); !allowed {
		t.Error("expected an independent budget for another key")
	}

	ttl, err := client.TTL(ctx, store.prefix+key+":"+strconv.FormatInt(time.Now().Truncate(time.Minute).Unix(), 10)).Result()
	if err != nil {
		t.Fatalf("failed to read TTL: %v", err)
	}
	if ttl <= 0 {
		t.Errorf("expected the window key to expire, got TTL %v", ttl)
	}
}
