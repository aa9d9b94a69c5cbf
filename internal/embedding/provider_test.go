package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestDisabled(t *testing.T) {
	var p Provider = Disabled{}
	if p.Enabled() {
		t.Error("expected disabled provider")
	}
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestNew(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()

	tests := []struct {
		name    string
		cfg     Config
		rdb     redis.Cmdable
		wantErr bool
		check   func(t *testing.T, p Provider)
	}{
		{
			name: "empty provider is disabled",
			cfg:  Config{},
			check: func(t *testing.T, p Provider) {
				if _, ok := p.(Disabled); !ok {
					t.Errorf("expected Disabled, got %T", p)
				}
			},
		},
		{
			name:    "openai without key",
			cfg:     Config{Provider: ProviderOpenAI},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "cohere"},
			wantErr: true,
		},
		{
			name: "openai without cache",
			cfg:  Config{Provider: ProviderOpenAI, APIKey: "k"},
			rdb:  rdb,
			check: func(t *testing.T, p Provider) {
				op, ok := p.(*OpenAIProvider)
				if !ok {
					t.Fatalf("expected *OpenAIProvider, got %T", p)
				}
				if op.Model() != DefaultModel {
					t.Errorf("expected default model, got %s", op.Model())
				}
			},
		},
		{
			name: "openai with cache",
			cfg:  Config{Provider: ProviderOpenAI, APIKey: "k", CacheTTL: time.Hour},
			rdb:  rdb,
			check: func(t *testing.T, p Provider) {
				if _, ok := p.(*CachedProvider); !ok {
					t.Errorf("expected *CachedProvider, got %T", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, tt.rdb, quietLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, p)
		})
	}
}
