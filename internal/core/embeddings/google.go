package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	ModelTextEmbedding004 = "text-embedding-004"

	googleRateLimiterBurst = 5
)

var (
	ErrGoogleEmptyResponse = errors.New("empty embedding response from Google")
	ErrGoogleAPIFailure    = errors.New("google embedding API error")
)

// GoogleProvider embeds text with Gemini embedding models.
type GoogleProvider struct {
	client      *genai.Client
	model       string
	priority    int
	rateLimiter *rate.Limiter
}

// GoogleConfig holds configuration for the Google embedding provider.
type GoogleConfig struct {
	APIKey    string
	Model     string
	RateLimit float64
	Priority  int
}

// NewGoogleProvider creates a Google embedding provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.Model == "" {
		cfg.Model = ModelTextEmbedding004
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}

	if cfg.Priority == 0 {
		cfg.Priority = PriorityFallback
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &GoogleProvider{
		client:      client,
		model:       cfg.Model,
		priority:    cfg.Priority,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), googleRateLimiterBurst),
	}, nil
}

func (p *GoogleProvider) Name() ProviderName { return ProviderGoogle }
func (p *GoogleProvider) Model() string      { return p.model }
func (p *GoogleProvider) Priority() int      { return p.priority }
func (p *GoogleProvider) IsAvailable() bool  { return p.client != nil }

// Embed uses a batch request so one call covers all texts.
func (p *GoogleProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiterFmt, err)
	}

	em := p.client.EmbeddingModel(p.model)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGoogleAPIFailure, err)
	}

	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, ErrGoogleEmptyResponse
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))

	for _, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, ErrGoogleEmptyResponse
		}

		vectors = append(vectors, e.Values)
	}

	return vectors, nil
}

// Close closes the Google client.
func (p *GoogleProvider) Close() error {
	if p.client == nil {
		return nil
	}

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing google embedding client: %w", err)
	}

	return nil
}
