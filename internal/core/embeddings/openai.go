package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"

	openaiRateLimiterBurst = 5
	modelPrefixEmbedding3  = "text-embedding-3"
)

var ErrOpenAIEmptyResponse = errors.New("empty embedding response from OpenAI")

// OpenAIProvider embeds text with the OpenAI embeddings API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	dimensions  int
	priority    int
	rateLimiter *rate.Limiter
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	RateLimit  float64 // requests per second
	Priority   int
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = ModelTextEmbedding3Small
	}

	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}

	if cfg.Priority == 0 {
		cfg.Priority = PriorityPrimary
	}

	return &OpenAIProvider{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		priority:    cfg.Priority,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), openaiRateLimiterBurst),
	}
}

func (p *OpenAIProvider) Name() ProviderName { return ProviderOpenAI }
func (p *OpenAIProvider) Model() string      { return p.model }
func (p *OpenAIProvider) Priority() int      { return p.priority }
func (p *OpenAIProvider) IsAvailable() bool  { return p.client != nil }

// Embed sends all texts in one request.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiterFmt, err)
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}

	// text-embedding-3 models can shorten vectors server-side.
	if strings.HasPrefix(p.model, modelPrefixEmbedding3) {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrOpenAIEmptyResponse
	}

	vectors := make([][]float32, len(texts))

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrVectorCountMismatch, d.Index)
		}

		vectors[d.Index] = d.Embedding
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing vector %d", ErrVectorCountMismatch, i)
		}
	}

	return vectors, nil
}
