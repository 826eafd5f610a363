// Package embeddings turns material text and search themes into vectors.
//
// Providers are tried in priority order behind per-provider circuit breakers.
// Every vector is padded or truncated to the dimension of the vector column,
// so one request always sees vectors of the same length.
package embeddings

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Client is what the analysis pipeline and the ingester depend on.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var _ Client = (*Registry)(nil)

// Config holds configuration for creating an embedding client.
type Config struct {
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIRateLimit float64

	GoogleAPIKey    string
	GoogleModel     string
	GoogleRateLimit float64

	// ProviderOrder is a comma-separated list, e.g. "openai,google".
	ProviderOrder string

	CircuitBreakerConfig CircuitBreakerConfig
	TargetDimensions     int
}

// NewClient registers configured providers and falls back to the mock
// provider when none is usable.
func NewClient(ctx context.Context, cfg Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.TargetDimensions == 0 {
		cfg.TargetDimensions = DefaultDimensions
	}

	registry := NewRegistry(cfg.TargetDimensions, cfg.CircuitBreakerConfig, logger)

	for i, name := range parseProviderOrder(cfg.ProviderOrder) {
		priority := PriorityPrimary - i*10

		switch name {
		case string(ProviderOpenAI):
			if cfg.OpenAIAPIKey != "" && cfg.OpenAIAPIKey != mockAPIKey {
				registry.Register(NewOpenAIProvider(OpenAIConfig{
					APIKey:     cfg.OpenAIAPIKey,
					Model:      cfg.OpenAIModel,
					Dimensions: cfg.TargetDimensions,
					RateLimit:  cfg.OpenAIRateLimit,
					Priority:   priority,
				}))
			}
		case string(ProviderGoogle):
			if cfg.GoogleAPIKey == "" {
				continue
			}

			p, err := NewGoogleProvider(ctx, GoogleConfig{
				APIKey:    cfg.GoogleAPIKey,
				Model:     cfg.GoogleModel,
				RateLimit: cfg.GoogleRateLimit,
				Priority:  priority,
			})
			if err != nil {
				logger.Error().Err(err).Msg("failed to create Google embedding provider")
				continue
			}

			registry.Register(p)
		default:
			logger.Warn().Str(logKeyProvider, name).Msg("unknown embedding provider in order, ignoring")
		}
	}

	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no embedding providers configured, using mock provider")
		registry.Register(NewMockProvider(cfg.TargetDimensions))
	}

	return registry
}

func parseProviderOrder(order string) []string {
	if strings.TrimSpace(order) == "" {
		return []string{string(ProviderOpenAI), string(ProviderGoogle)}
	}

	var providers []string

	for _, p := range strings.Split(order, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			providers = append(providers, p)
		}
	}

	return providers
}
