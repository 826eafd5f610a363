package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/platform/config"
)

type mockLLMProvider struct {
	mock.Mock
	name     ProviderName
	priority int
	model    string
}

func (m *mockLLMProvider) Name() ProviderName   { return m.name }
func (m *mockLLMProvider) IsAvailable() bool    { return true }
func (m *mockLLMProvider) Priority() int        { return m.priority }
func (m *mockLLMProvider) DefaultModel() string { return m.model }

func (m *mockLLMProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Completion), args.Error(1)
}

func newTestRegistry() *Registry {
	logger := zerolog.Nop()
	return NewRegistry(embeddings.CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour}, &logger)
}

func TestRegistryCompleteUsesPrimary(t *testing.T) {
	r := newTestRegistry()
	primary := &mockLLMProvider{name: ProviderDeepSeek, priority: PriorityPrimary, model: ModelDeepSeekChat}
	primary.On("Complete", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.System == "sys" && req.User == "user" && req.Model == ModelDeepSeekChat && req.Task == TaskAnalysis
	})).Return(Completion{Text: "ok", Model: ModelDeepSeekChat, PromptTokens: 10, CompletionTokens: 5}, nil)

	r.Register(primary)

	got, err := r.Complete(context.Background(), TaskAnalysis, "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)

	assert.Equal(t, int64(15), r.BudgetStatus().Used)
	primary.AssertExpectations(t)
}

func TestRegistryFallsBack(t *testing.T) {
	r := newTestRegistry()
	primary := &mockLLMProvider{name: ProviderDeepSeek, priority: PriorityPrimary, model: ModelDeepSeekChat}
	fallback := &mockLLMProvider{name: ProviderOpenAI, priority: PriorityFallback, model: ModelGPT4oMini}

	primary.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, errors.New("503")).Once()
	fallback.On("Complete", mock.Anything, mock.Anything).Return(Completion{Text: "from fallback"}, nil).Twice()

	r.Register(fallback)
	r.Register(primary)

	got, err := r.Complete(context.Background(), TaskChunk, "", "u")
	require.NoError(t, err)
	assert.Equal(t, "from fallback", got.Text)

	// Primary circuit is open now; only the fallback is called.
	_, err = r.Complete(context.Background(), TaskChunk, "", "u")
	require.NoError(t, err)

	primary.AssertNumberOfCalls(t, "Complete", 1)
	fallback.AssertNumberOfCalls(t, "Complete", 2)
}

func TestRegistryAllFail(t *testing.T) {
	r := newTestRegistry()
	p := &mockLLMProvider{name: ProviderOpenAI, priority: PriorityPrimary}
	p.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, errors.New("boom"))
	r.Register(p)

	_, err := r.Complete(context.Background(), TaskFilter, "", "u")
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestRegistryNoProviders(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Complete(context.Background(), TaskFilter, "", "u")
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
	assert.Equal(t, DefaultContextSize, r.MaxContextSize())
}

func TestRegistryBudgetExceeded(t *testing.T) {
	r := newTestRegistry()
	p := &mockLLMProvider{name: ProviderOpenAI, priority: PriorityPrimary}
	p.On("Complete", mock.Anything, mock.Anything).Return(Completion{Text: "x", PromptTokens: 100}, nil).Once()
	r.Register(p)
	r.SetBudgetLimit(50)

	_, err := r.Complete(context.Background(), TaskAnalysis, "", "u")
	require.NoError(t, err)

	_, err = r.Complete(context.Background(), TaskAnalysis, "", "u")
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestRegistryModelOverride(t *testing.T) {
	r := newTestRegistry()
	p := &mockLLMProvider{name: ProviderOpenAI, priority: PriorityPrimary, model: ModelGPT4oMini}
	p.On("Complete", mock.Anything, mock.MatchedBy(func(req Request) bool { return req.Model == "gpt-4o" })).
		Return(Completion{Text: "x"}, nil)
	r.Register(p)
	r.SetTaskModelOverride(TaskSynthesis, "gpt-4o")

	_, err := r.Complete(context.Background(), TaskSynthesis, "", "u")
	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestMaxContextSizeFollowsPrimaryModel(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockLLMProvider{name: ProviderGoogle, priority: PriorityPrimary, model: ModelGemini15Pro})

	assert.Equal(t, 1000000, r.MaxContextSize())
}

func TestMaxContextSizeIsSmallestServingWindow(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockLLMProvider{name: ProviderGoogle, priority: PriorityPrimary, model: ModelGemini15Pro})
	r.Register(&mockLLMProvider{name: ProviderDeepSeek, priority: PriorityFallback, model: ModelDeepSeekChat})

	assert.Equal(t, 64000, r.MaxContextSize(), "fallback window bounds the prompt")

	// Threshold is 1: one failure opens the circuit.
	r.circuitBreakers[ProviderDeepSeek].RecordFailure()
	assert.Equal(t, 1000000, r.MaxContextSize(), "open circuit cannot serve")

	r.circuitBreakers[ProviderDeepSeek].Reset()
	r.circuitBreakers[ProviderGoogle].RecordFailure()
	assert.Equal(t, 64000, r.MaxContextSize(), "primary down, deepseek serves")

	r.circuitBreakers[ProviderDeepSeek].RecordFailure()
	assert.Equal(t, DefaultContextSize, r.MaxContextSize())
}

func TestMaxContextSizeHonoursModelOverride(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockLLMProvider{name: ProviderGoogle, priority: PriorityPrimary, model: ModelGemini15Pro})
	r.SetTaskModelOverride(TaskAnalysis, ModelGPT4oMini)

	assert.Equal(t, 128000, r.MaxContextSize())
}

func TestContextWindow(t *testing.T) {
	tests := map[string]int{
		"deepseek-chat":     64000,
		"deepseek-reasoner": 64000,
		"gpt-4o":            128000,
		"gpt-4o-mini":       128000,
		"o1-preview":        128000,
		"o1-mini":           128000,
		"gemini-1.5-pro":    1000000,
		"gemini-2.0-pro":    2000000,
		"gemini-2.0-flash":  1000000,
		"unknown-model":     DefaultContextSize,
		"":                  DefaultContextSize,
	}

	for model, want := range tests {
		assert.Equal(t, want, ContextWindow(model), model)
	}
}

func TestProviderOrder(t *testing.T) {
	cfg := &config.Config{LLMProvider: "DeepSeek", LLMFallbacks: []string{"openai", "deepseek", " google "}}

	assert.Equal(t, []ProviderName{ProviderDeepSeek, ProviderOpenAI, ProviderGoogle}, providerOrder(cfg))
}

func TestNewFallsBackToMock(t *testing.T) {
	logger := zerolog.Nop()
	r := New(context.Background(), &config.Config{LLMProvider: "openai"}, &logger)

	statuses := r.GetProviderStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, ProviderMock, statuses[0].Name)

	got, err := r.Complete(context.Background(), TaskTheme, "", "Запрос:\nновые игры на switch")
	require.NoError(t, err)
	assert.Equal(t, "новые игры на switch", got.Text)
}

func TestBudgetTrackerLevelsAndRollover(t *testing.T) {
	logger := zerolog.Nop()
	loc := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	bt := NewBudgetTracker(100, loc, &logger)
	bt.now = func() time.Time { return now }
	bt.status.Day = bt.day()

	bt.RecordTokens(80)
	assert.Equal(t, BudgetWarning, bt.Status().Level)
	assert.False(t, bt.Exceeded())

	bt.RecordTokens(30)
	assert.True(t, bt.Exceeded())
	assert.InDelta(t, 1.1, bt.Status().Fraction(), 1e-9)

	// 21:00 UTC is already the next day in MSK.
	now = now.Add(time.Hour)
	status := bt.Status()
	assert.Equal(t, "2026-03-02", status.Day)
	assert.Equal(t, int64(0), status.Used)
	assert.Equal(t, int64(100), status.Limit)
	assert.Equal(t, BudgetOK, status.Level)
}

func TestBudgetTrackerWithoutLimit(t *testing.T) {
	bt := NewBudgetTracker(0, nil, nil)

	bt.RecordTokens(1_000_000)

	assert.False(t, bt.Exceeded())
	assert.Equal(t, int64(1_000_000), bt.Status().Used)
	assert.Zero(t, bt.Status().Fraction())
}

func TestNewAppliesTaskModels(t *testing.T) {
	cfg := &config.Config{
		LLMProvider:       string(ProviderMock),
		LLMModelSynthesis: "gpt-4o",
		LLMModelChunk:     "",
	}

	r := New(context.Background(), cfg, nil)

	assert.Equal(t, map[TaskType]string{TaskSynthesis: "gpt-4o"}, r.TaskModelOverrides())
	// the mock model is unknown, so its default window stays the bound
	assert.Equal(t, DefaultContextSize, r.MaxContextSize())
}
