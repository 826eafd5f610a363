// Package llm talks to chat completion providers.
//
// The Registry tries the configured primary provider first and falls back to
// the others in priority order. Each provider sits behind a circuit breaker
// and a token-bucket rate limiter. Without any API key the mock provider is
// registered so the bot still runs locally.
package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/platform/config"
)

// Client is the text-analysis service used by the analysis pipeline.
type Client interface {
	// Complete runs one system+user prompt pair.
	Complete(ctx context.Context, task TaskType, system, user string) (Completion, error)
	// MaxContextSize is the smallest context window of the models that can serve requests.
	MaxContextSize() int
}

var _ Client = (*Registry)(nil)

func buildCircuitConfig(cfg *config.Config) embeddings.CircuitBreakerConfig {
	circuitCfg := embeddings.CircuitBreakerConfig{
		Threshold:  cfg.LLMCircuitThreshold,
		ResetAfter: cfg.LLMCircuitTimeout,
	}

	if circuitCfg.Threshold == 0 {
		circuitCfg.Threshold = defaultCircuitThreshold
	}

	if circuitCfg.ResetAfter == 0 {
		circuitCfg.ResetAfter = defaultCircuitTimeout
	}

	return circuitCfg
}

// providerOrder returns LLM_PROVIDER followed by LLM_FALLBACKS without duplicates.
func providerOrder(cfg *config.Config) []ProviderName {
	seen := make(map[ProviderName]bool)

	var order []ProviderName

	for _, raw := range append([]string{cfg.LLMProvider}, cfg.LLMFallbacks...) {
		name := ProviderName(strings.ToLower(strings.TrimSpace(raw)))
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		order = append(order, name)
	}

	return order
}

func priorityAt(i int) int {
	switch i {
	case 0:
		return PriorityPrimary
	case 1:
		return PriorityFallback
	case 2:
		return PrioritySecondFallback
	default:
		return PriorityThirdFallback
	}
}

func registerProviders(ctx context.Context, registry *Registry, cfg *config.Config, logger *zerolog.Logger) {
	opts := providerOptions{
		temperature: cfg.LLMTemperature,
		maxTokens:   cfg.LLMMaxOutputTokens,
		rps:         cfg.LLMRateLimitRPS,
	}

	for i, name := range providerOrder(cfg) {
		opts.priority = priorityAt(i)

		// LLM_MODEL overrides the primary provider's model only.
		model := ""
		if i == 0 {
			model = cfg.LLMModel
		}

		switch name {
		case ProviderDeepSeek:
			if hasKey(cfg.DeepSeekAPIKey) {
				registry.Register(newDeepSeekProvider(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, coalesce(model, cfg.DeepSeekModel), opts))
			}
		case ProviderOpenAI:
			if hasKey(cfg.OpenAIAPIKey) {
				registry.Register(newOpenAIProvider(cfg.OpenAIAPIKey, coalesce(model, cfg.OpenAIModel), opts))
			}
		case ProviderAnthropic:
			if hasKey(cfg.AnthropicAPIKey) {
				registry.Register(newAnthropicProvider(cfg.AnthropicAPIKey, coalesce(model, cfg.AnthropicModel), opts))
			}
		case ProviderGoogle:
			if !hasKey(cfg.GoogleAPIKey) {
				continue
			}

			p, err := newGoogleProvider(ctx, cfg.GoogleAPIKey, coalesce(model, cfg.GoogleModel), opts)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to create Google LLM provider")
				continue
			}

			registry.Register(p)
		case ProviderMock:
			registry.Register(NewMockProvider())
		default:
			logger.Warn().Str(logKeyProvider, string(name)).Msg("unknown LLM provider, ignoring")
		}
	}

	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no LLM providers configured, using mock provider")
		registry.Register(NewMockProvider())
	}
}

// New builds a Registry from configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(buildCircuitConfig(cfg), logger)
	registry.SetBudgetLimit(cfg.LLMDailyTokenBudget)
	registerProviders(ctx, registry, cfg, logger)

	for task, model := range taskModels(cfg) {
		if model == "" {
			continue
		}

		registry.SetTaskModelOverride(task, model)
		logger.Info().Str(logKeyTask, string(task)).Str(logKeyModel, model).Msg("task model override")
	}

	return registry
}

func taskModels(cfg *config.Config) map[TaskType]string {
	return map[TaskType]string{
		TaskTheme:     cfg.LLMModelTheme,
		TaskFilter:    cfg.LLMModelFilter,
		TaskAnalysis:  cfg.LLMModelAnalysis,
		TaskChunk:     cfg.LLMModelChunk,
		TaskSynthesis: cfg.LLMModelSynthesis,
	}
}

func hasKey(key string) bool {
	return key != "" && key != llmAPIKeyMock
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
