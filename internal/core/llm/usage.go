package llm

import "github.com/lueurxax/trend-digest-bot/internal/platform/observability"

// recordTokenUsage records request and token metrics for one provider call.
func recordTokenUsage(provider ProviderName, model string, task TaskType, promptTokens, completionTokens int, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}

	observability.LLMRequests.WithLabelValues(string(provider), model, string(task), status).Inc()

	if promptTokens > 0 {
		observability.LLMTokensPrompt.WithLabelValues(string(provider), model, string(task)).Add(float64(promptTokens))
	}

	if completionTokens > 0 {
		observability.LLMTokensCompletion.WithLabelValues(string(provider), model, string(task)).Add(float64(completionTokens))
	}
}

// providerOptions are the knobs shared by all real providers.
type providerOptions struct {
	priority    int
	temperature float32
	maxTokens   int
	rps         float64
}

func (o providerOptions) withDefaults() providerOptions {
	if o.temperature <= 0 {
		o.temperature = defaultTemperature
	}

	if o.maxTokens <= 0 {
		o.maxTokens = defaultMaxTokens
	}

	if o.rps <= 0 {
		o.rps = 1
	}

	return o
}

func (o providerOptions) resolve(req Request) (temperature float32, maxTokens int) {
	temperature = o.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	maxTokens = o.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return temperature, maxTokens
}
