package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no embedding providers available")
	ErrAllProvidersFailed   = errors.New("all embedding providers failed")
	ErrVectorCountMismatch  = errors.New("provider returned wrong number of vectors")
)

// Registry manages embedding providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // highest priority first
	circuitBreakers map[ProviderName]*CircuitBreaker
	circuitCfg      CircuitBreakerConfig
	targetDimension int
	logger          *zerolog.Logger
}

// NewRegistry creates an empty registry producing vectors of targetDimension.
func NewRegistry(targetDimension int, circuitCfg CircuitBreakerConfig, logger *zerolog.Logger) *Registry {
	return &Registry{
		providers:       make(map[ProviderName]Provider),
		circuitBreakers: make(map[ProviderName]*CircuitBreaker),
		circuitCfg:      circuitCfg,
		targetDimension: targetDimension,
		logger:          logger,
	}
}

// Register adds a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = NewCircuitBreaker(string(name), r.circuitCfg, r.logger)

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() > r.providers[r.order[j]].Priority()
	})

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Str("model", p.Model()).
		Int("priority", p.Priority()).
		Msg("registered embedding provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// ProviderNames returns provider names in priority order.
func (r *Registry) ProviderNames() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]ProviderName, len(r.order))
	copy(names, r.order)

	return names
}

// Dimensions returns the length of every returned vector.
func (r *Registry) Dimensions() int {
	return r.targetDimension
}

// Embed returns the vector for one text.
func (r *Registry) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedBatch returns one vector per text, trying providers in priority order.
// All vectors of one call come from the same provider.
func (r *Registry) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	providers, primary := r.activeProviders()
	if len(providers) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	var lastErr error

	for _, p := range providers {
		name := string(p.Name())
		cb := r.circuitBreaker(p.Name())

		if !cb.CanAttempt() {
			r.logger.Debug().Str(logKeyProvider, name).Msg("skipping provider - circuit breaker open")
			continue
		}

		start := time.Now()
		vectors, err := p.Embed(ctx, texts)
		recordLatency(name, time.Since(start))

		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("%w: want %d, got %d", ErrVectorCountMismatch, len(texts), len(vectors))
		}

		if err != nil {
			cb.RecordFailure()
			recordRequest(name, false)

			lastErr = err

			r.logger.Warn().Err(err).Str(logKeyProvider, name).Msg("embedding provider failed, trying fallback")

			continue
		}

		cb.RecordSuccess()
		recordRequest(name, true)
		recordTokens(name, texts)

		if primary != "" && p.Name() != primary {
			recordFallback(string(primary), name)
			r.logger.Info().
				Str(logKeyProvider, name).
				Str("from_provider", string(primary)).
				Msg("used fallback embedding provider")
		}

		for i := range vectors {
			vectors[i] = PadToTargetDimensions(vectors[i], r.targetDimension)
		}

		return vectors, nil
	}

	if lastErr != nil {
		return nil, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return nil, ErrNoProvidersAvailable
}

func (r *Registry) activeProviders() ([]Provider, ProviderName) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Provider, 0, len(r.order))

	for _, name := range r.order {
		if p := r.providers[name]; p.IsAvailable() {
			active = append(active, p)
		}
	}

	var primary ProviderName
	if len(r.order) > 0 {
		primary = r.order[0]
	}

	return active, primary
}

func (r *Registry) circuitBreaker(name ProviderName) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}
