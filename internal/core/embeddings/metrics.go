package embeddings

import (
	"time"

	"github.com/lueurxax/trend-digest-bot/internal/core/tokens"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func recordRequest(provider string, success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	observability.EmbeddingRequests.WithLabelValues(provider, status).Inc()
}

func recordTokens(provider string, texts []string) {
	total := 0
	for _, t := range texts {
		total += tokens.Approximate(t)
	}

	if total > 0 {
		observability.EmbeddingTokens.WithLabelValues(provider).Add(float64(total))
	}
}

func recordLatency(provider string, d time.Duration) {
	observability.EmbeddingLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func recordFallback(from, to string) {
	observability.EmbeddingFallbacks.WithLabelValues(from, to).Inc()
}
