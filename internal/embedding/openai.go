package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the default OpenAI embedding model.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions matches the vector(1536) column of the memories table.
	DefaultDimensions = 1536
	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 10 * time.Second

	textEmbedding3Prefix = "text-embedding-3"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	// RequestsPerMinute caps outgoing requests; 0 means unlimited.
	RequestsPerMinute int
	// RequestOptions are appended to every request (tests use this to
	// disable retries).
	RequestOptions []option.RequestOption
}

// OpenAIProvider calls the OpenAI embeddings API (or a compatible endpoint).
type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	reqOpts    []option.RequestOption
}

// NewOpenAIProvider creates an OpenAIProvider. Zero values fall back to
// DefaultModel, DefaultDimensions and DefaultTimeout.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	clientOpts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute)
	}

	return &OpenAIProvider{
		client:     openai.NewClient(clientOpts...),
		model:      modelOrDefault(cfg.Model),
		dimensions: dims,
		limiter:    limiter,
		reqOpts:    cfg.RequestOptions,
	}
}

// Enabled implements Provider.
func (p *OpenAIProvider) Enabled() bool { return true }

// Model returns the configured model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}

	request := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only text-embedding-3 models accept a dimensions parameter.
	if strings.HasPrefix(p.model, textEmbedding3Prefix) {
		request.Dimensions = openai.Int(int64(p.dimensions))
	}

	response, err := p.client.Embeddings.New(ctx, request, p.reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	raw := response.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}
