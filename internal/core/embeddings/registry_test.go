package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     ProviderName
	priority int
	dims     int
	err      error
	calls    int
}

func (s *stubProvider) Name() ProviderName { return s.name }
func (s *stubProvider) Model() string      { return "stub" }
func (s *stubProvider) Priority() int      { return s.priority }
func (s *stubProvider) IsAvailable() bool  { return true }

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
		out[i][0] = float32(i + 1)
	}

	return out, nil
}

func newTestRegistry(dims int) *Registry {
	logger := zerolog.Nop()
	return NewRegistry(dims, CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour}, &logger)
}

func TestRegistryFallsBackAndPads(t *testing.T) {
	r := newTestRegistry(8)
	primary := &stubProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errors.New("quota")}
	fallback := &stubProvider{name: ProviderGoogle, priority: PriorityFallback, dims: 4}

	r.Register(fallback)
	r.Register(primary)

	assert.Equal(t, []ProviderName{ProviderOpenAI, ProviderGoogle}, r.ProviderNames())

	vectors, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
	assert.InDelta(t, 2.0, vectors[1][0], 1e-9)

	// The primary circuit is now open and is skipped.
	_, err = r.Embed(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, fallback.calls)
}

func TestRegistryAllFail(t *testing.T) {
	r := newTestRegistry(4)
	r.Register(&stubProvider{name: ProviderOpenAI, priority: 1, err: errors.New("down")})

	_, err := r.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestRegistryEmpty(t *testing.T) {
	r := newTestRegistry(4)

	_, err := r.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)

	vectors, err := r.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestMockProviderIsDeterministicUnitVector(t *testing.T) {
	p := NewMockProvider(16)

	a, err := p.Embed(context.Background(), []string{"same", "same", "other"})
	require.NoError(t, err)

	assert.Equal(t, a[0], a[1])
	assert.NotEqual(t, a[0], a[2])

	var sum float64
	for _, v := range a[0] {
		sum += float64(v) * float64(v)
	}

	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestPadToTargetDimensions(t *testing.T) {
	assert.Equal(t, []float32{1, 2, 0}, PadToTargetDimensions([]float32{1, 2}, 3))
	assert.Equal(t, []float32{1, 2}, PadToTargetDimensions([]float32{1, 2, 3}, 2))
	assert.Equal(t, []float32{1}, PadToTargetDimensions([]float32{1}, 1))
}

func TestCircuitBreaker(t *testing.T) {
	logger := zerolog.Nop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cb := NewCircuitBreaker("p", CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute}, &logger)
	cb.now = func() time.Time { return now }

	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.CanAttempt())
	assert.True(t, cb.RecordFailure())
	assert.False(t, cb.CanAttempt())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.CanAttempt())

	// after the open period one more failure reopens it until a success resets the count
	assert.True(t, cb.RecordFailure())
	assert.False(t, cb.CanAttempt())

	now = now.Add(2 * time.Minute)
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.CanAttempt())
}
