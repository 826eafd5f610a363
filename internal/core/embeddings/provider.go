package embeddings

import "context"

// ProviderName identifies an embedding provider.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderGoogle ProviderName = "google"
	ProviderMock   ProviderName = "mock"
)

const (
	PriorityPrimary  = 100
	PriorityFallback = 50
	PriorityMock     = 0
)

// DefaultDimensions matches the materials.embedding column.
const DefaultDimensions = 1536

const (
	defaultCircuitThreshold = 5
	errRateLimiterFmt       = "rate limiter: %w"
	mockAPIKey              = "mock"
	logKeyProvider          = "provider"
)

// Provider turns texts into vectors. Implementations return one vector per
// input text, in input order.
type Provider interface {
	Name() ProviderName
	Model() string
	Priority() int
	IsAvailable() bool
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
