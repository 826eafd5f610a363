package llm

import "context"

// ProviderName identifies an LLM provider.
type ProviderName string

const (
	ProviderDeepSeek  ProviderName = "deepseek"
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGoogle    ProviderName = "google"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering. The configured primary provider
// gets PriorityPrimary, fallbacks follow in configured order.
const (
	PriorityPrimary        = 100
	PriorityFallback       = 50
	PrioritySecondFallback = 25
	PriorityThirdFallback  = 10
	PriorityMock           = 0
)

// Request is one chat completion call.
type Request struct {
	Task        TaskType
	System      string
	User        string
	Model       string // empty selects the provider default
	MaxTokens   int
	Temperature float32
}

// Completion is the text a provider produced.
type Completion struct {
	Text             string
	Model            string
	Provider         ProviderName
	PromptTokens     int
	CompletionTokens int
}

// Provider is a single LLM backend.
type Provider interface {
	Name() ProviderName
	IsAvailable() bool
	Priority() int
	DefaultModel() string
	Complete(ctx context.Context, req Request) (Completion, error)
}
