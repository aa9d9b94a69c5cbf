package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.calls++
	return p.err
}

func TestDBChecker(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "healthy", err: nil, wantErr: false},
		{name: "unreachable", err: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePinger{err: tt.err}
			checker := NewDBChecker(p)
			if checker.Name() != "database" {
				t.Errorf("expected name database, got %q", checker.Name())
			}
			err := checker.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
			if p.calls != 1 {
				t.Errorf("expected 1 ping, got %d", p.calls)
			}
		})
	}
}

func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewRedisChecker(client)
	if checker.Name() != "redis" {
		t.Errorf("expected name redis, got %q", checker.Name())
	}
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected an error for an unreachable Redis")
	}
}
