package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
	ErrBudgetExceeded       = errors.New("daily LLM token budget exceeded")
)

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // highest priority first
	circuitBreakers map[ProviderName]*embeddings.CircuitBreaker
	circuitCfg      embeddings.CircuitBreakerConfig
	modelOverrides  map[TaskType]string
	budgetTracker   *BudgetTracker
	logger          *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(circuitCfg embeddings.CircuitBreakerConfig, logger *zerolog.Logger) *Registry {
	return &Registry{
		providers:       make(map[ProviderName]Provider),
		circuitBreakers: make(map[ProviderName]*embeddings.CircuitBreaker),
		circuitCfg:      circuitCfg,
		modelOverrides:  make(map[TaskType]string),
		budgetTracker:   NewBudgetTracker(0, time.UTC, logger),
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = embeddings.NewCircuitBreaker(string(name), r.circuitCfg, r.logger)

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() > r.providers[r.order[j]].Priority()
	})

	available := MetricValueUnavailable
	if p.IsAvailable() {
		available = MetricValueAvailable
	}

	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(available)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Str(logKeyModel, p.DefaultModel()).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// SetTaskModelOverride forces a model for one task type on every provider.
func (r *Registry) SetTaskModelOverride(task TaskType, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if model == "" {
		delete(r.modelOverrides, task)
		return
	}

	r.modelOverrides[task] = model
}

// TaskModelOverrides returns a copy of the per-task model overrides.
func (r *Registry) TaskModelOverrides() map[TaskType]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	overrides := make(map[TaskType]string, len(r.modelOverrides))
	for task, model := range r.modelOverrides {
		overrides[task] = model
	}

	return overrides
}

// MaxContextSize returns the smallest context window among the models that
// can serve a request right now: available providers with a closed circuit,
// plus any task model overrides.
func (r *Registry) MaxContextSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	smallest := 0

	for _, name := range r.order {
		p := r.providers[name]
		if !p.IsAvailable() || !r.circuitBreakers[name].CanAttempt() {
			continue
		}

		if w := ContextWindow(p.DefaultModel()); smallest == 0 || w < smallest {
			smallest = w
		}
	}

	if smallest == 0 {
		return DefaultContextSize
	}

	for _, model := range r.modelOverrides {
		smallest = min(smallest, ContextWindow(model))
	}

	return smallest
}

// Complete implements Client with provider fallback.
func (r *Registry) Complete(ctx context.Context, task TaskType, system, user string) (Completion, error) {
	if r.budgetTracker.Exceeded() {
		return Completion{}, ErrBudgetExceeded
	}

	r.mu.RLock()
	override := r.modelOverrides[task]
	r.mu.RUnlock()

	return executeWithFallback(r, r.chain(), task, func(p Provider, model string) (Completion, error) {
		return p.Complete(ctx, Request{Task: task, System: system, User: user, Model: model})
	}, override)
}

func (r *Registry) chain() ProviderChain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain ProviderChain

	for i, name := range r.order {
		pm := ProviderModel{Provider: name}
		if i == 0 {
			chain.Default = pm
			continue
		}

		chain.Fallbacks = append(chain.Fallbacks, pm)
	}

	return chain
}

func executeWithFallback[T any](r *Registry, chain ProviderChain, task TaskType, fn func(Provider, string) (T, error), modelOverride string) (T, error) {
	var zero T

	providerModels := chain.GetProviderChain()
	if len(providerModels) == 0 {
		return zero, ErrNoProvidersAvailable
	}

	var (
		lastErr       error
		firstProvider ProviderName
	)

	for i, pm := range providerModels {
		if i == 0 {
			firstProvider = pm.Provider
		}

		if modelOverride != "" {
			pm.Model = modelOverride
		}

		result, ok, err := tryProvider(r, pm, task, fn)
		if err != nil {
			lastErr = err
			continue
		}

		if !ok {
			continue
		}

		if pm.Provider != firstProvider {
			observability.LLMFallbacks.WithLabelValues(string(firstProvider), string(pm.Provider), string(task)).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(pm.Provider)).
				Str("from_provider", string(firstProvider)).
				Str(logKeyTask, string(task)).
				Msg("used fallback LLM provider")
		}

		return result, nil
	}

	if lastErr != nil {
		return zero, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return zero, ErrNoProvidersAvailable
}

func tryProvider[T any](r *Registry, pm ProviderModel, task TaskType, fn func(Provider, string) (T, error)) (T, bool, error) {
	var zero T

	r.mu.RLock()
	p, exists := r.providers[pm.Provider]
	cb := r.circuitBreakers[pm.Provider]
	r.mu.RUnlock()

	if !exists || !p.IsAvailable() {
		return zero, false, nil
	}

	if !cb.CanAttempt() {
		observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)

		r.logger.Debug().
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyTask, string(task)).
			Msg(logMsgCircuitBreakerOpen)

		return zero, false, nil
	}

	model := coalesce(pm.Model, p.DefaultModel())

	start := time.Now()
	result, err := fn(p, model)
	duration := time.Since(start)

	observability.LLMRequestLatency.WithLabelValues(string(pm.Provider), model, string(task)).Observe(duration.Seconds())

	if err != nil {
		if cb.RecordFailure() {
			observability.LLMCircuitBreakerOpens.WithLabelValues(string(pm.Provider)).Inc()
			observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)
		}

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyModel, model).
			Str(logKeyTask, string(task)).
			Float64("duration_seconds", duration.Seconds()).
			Msg("LLM provider failed, trying fallback")

		return zero, false, fmt.Errorf("%s: %w", pm.Provider, err)
	}

	cb.RecordSuccess()
	observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueAvailable)

	if c, ok := any(result).(Completion); ok {
		r.budgetTracker.RecordTokens(c.PromptTokens + c.CompletionTokens)
	}

	return result, true, nil
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName
	Model            string
	Priority         int
	Available        bool
	CircuitBreakerOK bool
}

// GetProviderStatuses returns status information for all registered providers.
func (r *Registry) GetProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Model:            p.DefaultModel(),
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: r.circuitBreakers[name].CanAttempt(),
		})
	}

	return statuses
}

// SetBudgetLimit sets the daily token budget limit. Zero disables it.
func (r *Registry) SetBudgetLimit(limit int64) {
	r.budgetTracker.SetDailyLimit(limit)
}

// BudgetStatus returns today's token usage against the daily limit.
func (r *Registry) BudgetStatus() BudgetStatus {
	return r.budgetTracker.Status()
}
