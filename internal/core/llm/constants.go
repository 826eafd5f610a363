package llm

import "time"

const (
	errRateLimiterSimple = "rate limiter: %w"
	errFmtCompletion     = "%s completion: %w"
)

const (
	logKeyProvider = "provider"
	logKeyTask     = "task"
	logKeyModel    = "model"

	logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	MetricValueAvailable   = 1.0
	MetricValueUnavailable = 0.0
)

const (
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute
	defaultTemperature      = 0.7
	defaultMaxTokens        = 4096
	rateLimiterBurst        = 5
	llmAPIKeyMock           = "mock"
)

// Default models per provider.
const (
	ModelDeepSeekChat = "deepseek-chat"
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelClaudeHaiku  = "claude-3-5-haiku-latest"
	ModelGemini15Pro  = "gemini-1.5-pro"
)
