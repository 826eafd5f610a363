package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

const (
	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407
	seedShift     = 33
	floatScale    = 0x40000000
)

// MockProvider returns deterministic unit vectors derived from a text hash.
// Used when no API key is configured and in tests.
type MockProvider struct {
	dimensions int
}

func NewMockProvider(dims int) *MockProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}

	return &MockProvider{dimensions: dims}
}

func (p *MockProvider) Name() ProviderName { return ProviderMock }
func (p *MockProvider) Model() string      { return "mock" }
func (p *MockProvider) Priority() int      { return PriorityMock }
func (p *MockProvider) IsAvailable() bool  { return true }

func (p *MockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = p.vector(t)
	}

	return vectors, nil
}

func (p *MockProvider) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text)) // fnv.Write never returns an error
	seed := h.Sum64()

	vec := make([]float32, p.dimensions)

	var sum float64

	for i := range vec {
		seed = seed*lcgMultiplier + lcgIncrement
		//nolint:gosec // intentional uint64->int64 conversion for pseudo-random generation
		vec[i] = float32(int64(seed>>seedShift)-floatScale) / float32(floatScale)
		sum += float64(vec[i]) * float64(vec[i])
	}

	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
