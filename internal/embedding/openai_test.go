package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
)

// newEmbeddingServer returns a fake embeddings endpoint answering with vector.
func newEmbeddingServer(t *testing.T, vector []float64, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if body["model"] != "text-embedding-3-small" {
			t.Errorf("expected default model, got %v", body["model"])
		}
		if body["dimensions"] != float64(4) {
			t.Errorf("expected dimensions 4, got %v", body["dimensions"])
		}

		data := []map[string]any{}
		if vector != nil {
			data = append(data, map[string]any{"object": "embedding", "index": 0, "embedding": vector})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	server := newEmbeddingServer(t, []float64{0.1, 0.2, 0.3, 0.4}, nil)
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/",
		Dimensions:     4,
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})

	if !p.Enabled() {
		t.Fatal("expected provider to be enabled")
	}

	vec, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3, 0.4}
	if len(vec) != len(want) {
		t.Fatalf("expected %d dimensions, got %d", len(want), len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("dimension %d: expected %f, got %f", i, want[i], vec[i])
		}
	}
}

func TestOpenAIProvider_EmptyResponse(t *testing.T) {
	server := newEmbeddingServer(t, nil, nil)
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/",
		Dimensions:     4,
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})

	if _, err := p.Embed(context.Background(), "hello"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})

	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error from failing endpoint")
	}
}

func TestOpenAIProvider_EmptyText(t *testing.T) {
	var calls atomic.Int32
	server := newEmbeddingServer(t, []float64{1}, &calls)
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/"})
	if _, err := p.Embed(context.Background(), "   "); err == nil {
		t.Error("expected error for blank text")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request for blank text, got %d", calls.Load())
	}
}

func TestOpenAIProvider_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	server := newEmbeddingServer(t, []float64{1}, &calls)
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/", RequestsPerMinute: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Embed(ctx, "hello"); err == nil {
		t.Error("expected error for canceled context")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request for canceled context, got %d", calls.Load())
	}
}
