package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
)

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) SearchSimilar(ctx context.Context, embedding []float32, category string, threshold float32) ([]domain.Material, error) {
	args := m.Called(ctx, embedding, category, threshold)
	materials, _ := args.Get(0).([]domain.Material)

	return materials, args.Error(1)
}

func (m *mockRetriever) SearchByDateRange(ctx context.Context, category, start, end string) ([]domain.Material, error) {
	args := m.Called(ctx, category, start, end)
	materials, _ := args.Get(0).([]domain.Material)

	return materials, args.Error(1)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)

	return vec, args.Error(1)
}

// scriptedLLM answers every task with "<task> result" and records the call order.
type scriptedLLM struct {
	mu      sync.Mutex
	maxCtx  int
	tasks   []llm.TaskType
	prompts map[llm.TaskType][]string
	fail    map[llm.TaskType]error
	theme   string
}

func newScriptedLLM(maxCtx int) *scriptedLLM {
	return &scriptedLLM{
		maxCtx:  maxCtx,
		prompts: make(map[llm.TaskType][]string),
		fail:    make(map[llm.TaskType]error),
		theme:   "extracted theme",
	}
}

func (s *scriptedLLM) MaxContextSize() int { return s.maxCtx }

func (s *scriptedLLM) Complete(_ context.Context, task llm.TaskType, _, user string) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)
	s.prompts[task] = append(s.prompts[task], user)

	if err := s.fail[task]; err != nil {
		return llm.Completion{}, err
	}

	if task == llm.TaskTheme {
		return llm.Completion{Text: s.theme, Model: "test-model"}, nil
	}

	return llm.Completion{Text: string(task) + " result", Model: "test-model"}, nil
}

func (s *scriptedLLM) count(task llm.TaskType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if t == task {
			n++
		}
	}

	return n
}

func newTestOrchestrator(r Retriever, e Embedder, client LLM) *Orchestrator {
	logger := zerolog.Nop()
	return NewOrchestrator(r, e, client, lenCounter{}, DefaultSettings(), &logger)
}

func TestRunTrendSinglePass(t *testing.T) {
	client := newScriptedLLM(1000)
	embedder := &mockEmbedder{}
	retriever := &mockRetriever{}
	materials := materialsOfSizes(10, 20, 30)

	embedder.On("Embed", mock.Anything, "extracted theme").Return([]float32{0.1, 0.2}, nil)
	retriever.On("SearchSimilar", mock.Anything, []float32{0.1, 0.2}, "ai", float32(0.35)).Return(materials, nil)

	res := newTestOrchestrator(retriever, embedder, client).Run(context.Background(), Request{
		Mode:     domain.TrendQuery,
		Category: "ai",
		Query:    "что нового в языковых моделях",
	})

	success, ok := res.AsSuccess()
	require.True(t, ok)
	assert.Equal(t, "analysis result", success.Analysis)
	assert.Equal(t, "extracted theme", success.Theme)
	assert.Equal(t, 3, success.MaterialsCount)
	assert.Equal(t, 1, success.ChunksCount)
	assert.Equal(t, "test-model", success.Model)
	assert.Len(t, success.Materials, 3)

	assert.Equal(t, []llm.TaskType{llm.TaskTheme, llm.TaskFilter, llm.TaskAnalysis}, client.tasks)
	assert.Contains(t, client.prompts[llm.TaskAnalysis][0], "filter result")
	embedder.AssertExpectations(t)
	retriever.AssertExpectations(t)
}

func TestRunTrendChunked(t *testing.T) {
	// available = 80, five materials of 30 tokens, target = 2: chunks of 2, 2, 1
	client := newScriptedLLM(100)
	embedder := &mockEmbedder{}
	retriever := &mockRetriever{}

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	retriever.On("SearchSimilar", mock.Anything, mock.Anything, "", mock.Anything).
		Return(materialsOfSizes(30, 30, 30, 30, 30), nil)

	res := newTestOrchestrator(retriever, embedder, client).Run(context.Background(), Request{
		Mode:  domain.TrendQuery,
		Query: "query",
	})

	success, ok := res.AsSuccess()
	require.True(t, ok)
	assert.Equal(t, 3, success.ChunksCount)
	assert.Equal(t, 5, success.MaterialsCount)
	assert.Equal(t, "synthesis result", success.Analysis)
	assert.Equal(t, 3, client.count(llm.TaskChunk))
	assert.Equal(t, 1, client.count(llm.TaskSynthesis))
	assert.Zero(t, client.count(llm.TaskFilter))

	parts := client.prompts[llm.TaskSynthesis][0]
	assert.Contains(t, parts, "Часть 1:")
	assert.Contains(t, parts, "Часть 3:")
}

func TestRunBranchAtBudgetBoundary(t *testing.T) {
	// max context 100, trend reserve 0.2: available = 80 tokens.
	tests := []struct {
		name   string
		sizes  []int
		chunks int
		tasks  []llm.TaskType
	}{
		{"equal to available is single pass", []int{40, 40}, 1, []llm.TaskType{llm.TaskTheme, llm.TaskFilter, llm.TaskAnalysis}},
		{"one token over is chunked", []int{40, 41}, 2, []llm.TaskType{llm.TaskTheme, llm.TaskChunk, llm.TaskChunk, llm.TaskSynthesis}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newScriptedLLM(100)
			embedder := &mockEmbedder{}
			retriever := &mockRetriever{}

			embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
			retriever.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(materialsOfSizes(tt.sizes...), nil)

			orch := newTestOrchestrator(retriever, embedder, client)
			require.Equal(t, 80, orch.Budget(domain.TrendQuery).Available())

			res := orch.Run(context.Background(), Request{Mode: domain.TrendQuery, Query: "query"})

			success, ok := res.AsSuccess()
			require.True(t, ok)
			assert.Equal(t, tt.chunks, success.ChunksCount)
			assert.Equal(t, tt.tasks, client.tasks)
		})
	}
}

func TestRunTrendNoMaterials(t *testing.T) {
	client := newScriptedLLM(1000)
	embedder := &mockEmbedder{}
	retriever := &mockRetriever{}

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	retriever.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	res := newTestOrchestrator(retriever, embedder, client).Run(context.Background(), Request{
		Mode:  domain.TrendQuery,
		Query: "query",
	})

	e, ok := res.AsError()
	require.True(t, ok)
	assert.Equal(t, MsgNoRelevantMaterials, e.Message)
	assert.Equal(t, []llm.TaskType{llm.TaskTheme}, client.tasks)
}

func TestRunThemeFailureFallsBackToQuery(t *testing.T) {
	client := newScriptedLLM(1000)
	client.fail[llm.TaskTheme] = errors.New("provider down")

	embedder := &mockEmbedder{}
	retriever := &mockRetriever{}

	embedder.On("Embed", mock.Anything, "raw query").Return([]float32{1}, nil)
	retriever.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(materialsOfSizes(5), nil)

	res := newTestOrchestrator(retriever, embedder, client).Run(context.Background(), Request{
		Mode:  domain.TrendQuery,
		Query: "raw query",
	})

	success, ok := res.AsSuccess()
	require.True(t, ok)
	assert.Equal(t, "raw query", success.Theme)
	embedder.AssertExpectations(t)
}

func TestRunDailyDigestEmpty(t *testing.T) {
	retriever := &mockRetriever{}
	retriever.On("SearchByDateRange", mock.Anything, "games", "2024-05-01", "2024-05-01").Return(nil, nil)

	client := newScriptedLLM(1000)
	res := newTestOrchestrator(retriever, &mockEmbedder{}, client).Run(context.Background(), Request{
		Mode:     domain.DailyDigest,
		Category: "games",
		Date:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	e, ok := res.AsError()
	require.True(t, ok)
	assert.Equal(t, "Не найдено материалов за 2024-05-01", e.Message)
	assert.Empty(t, client.tasks)
}

func TestRunWeeklyDigestSinglePass(t *testing.T) {
	retriever := &mockRetriever{}
	retriever.On("SearchByDateRange", mock.Anything, "games", "2024-05-06", "2024-05-12").
		Return(materialsOfSizes(10, 10), nil)

	client := newScriptedLLM(1000)
	res := newTestOrchestrator(retriever, &mockEmbedder{}, client).Run(context.Background(), Request{
		Mode:     domain.WeeklyDigest,
		Category: "games",
		Date:     time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
	})

	success, ok := res.AsSuccess()
	require.True(t, ok)
	assert.Equal(t, "2024-05-06 - 2024-05-12", success.Period)
	assert.Equal(t, 1, success.ChunksCount)
	assert.Empty(t, success.Theme)
	assert.Nil(t, success.Materials)
	assert.Equal(t, []llm.TaskType{llm.TaskChunk, llm.TaskSynthesis}, client.tasks)
}

func TestRunWeeklyDigestEmptyPeriod(t *testing.T) {
	retriever := &mockRetriever{}
	retriever.On("SearchByDateRange", mock.Anything, "games", "2024-05-06", "2024-05-12").Return(nil, nil)

	res := newTestOrchestrator(retriever, &mockEmbedder{}, newScriptedLLM(1000)).Run(context.Background(), Request{
		Mode:     domain.WeeklyDigest,
		Category: "games",
		Date:     time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
	})

	e, ok := res.AsError()
	require.True(t, ok)
	assert.Equal(t, "Не найдено материалов за период 2024-05-06 - 2024-05-12", e.Message)
}

func TestRunServiceFailureBecomesErrorResult(t *testing.T) {
	retriever := &mockRetriever{}
	retriever.On("SearchByDateRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(materialsOfSizes(10), nil)

	client := newScriptedLLM(1000)
	client.fail[llm.TaskSynthesis] = errors.New("quota exhausted")

	res := newTestOrchestrator(retriever, &mockEmbedder{}, client).Run(context.Background(), Request{
		Mode: domain.DailyDigest,
		Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	e, ok := res.AsError()
	require.True(t, ok)
	assert.Contains(t, e.Message, "quota exhausted")
}

func TestRunRecoversPanic(t *testing.T) {
	retriever := &mockRetriever{}
	retriever.On("SearchByDateRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") })

	var res domain.AnalysisResult

	require.NotPanics(t, func() {
		res = newTestOrchestrator(retriever, &mockEmbedder{}, newScriptedLLM(1000)).Run(context.Background(), Request{
			Mode: domain.DailyDigest,
			Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		})
	})

	assert.Equal(t, domain.ResultError, res.Kind())
}

func TestRunEmptyQuery(t *testing.T) {
	client := newScriptedLLM(1000)
	res := newTestOrchestrator(&mockRetriever{}, &mockEmbedder{}, client).Run(context.Background(), Request{
		Mode:  domain.TrendQuery,
		Query: "   ",
	})

	assert.Equal(t, domain.ResultError, res.Kind())
	assert.Empty(t, client.tasks)
}

func TestBudgetPerMode(t *testing.T) {
	o := newTestOrchestrator(&mockRetriever{}, &mockEmbedder{}, newScriptedLLM(64000))

	assert.Equal(t, 51200, o.Budget(domain.TrendQuery).Available())
	assert.Equal(t, 51200, o.Budget(domain.DailyDigest).Available())
	assert.Equal(t, 44800, o.Budget(domain.WeeklyDigest).Available())
	assert.InDelta(t, 1.2, o.Budget(domain.WeeklyDigest).Margin(), 1e-9)
}

func TestAnalyzeAllKeepsOrderInParallel(t *testing.T) {
	client := newScriptedLLM(1000)
	chunks := []Chunk{
		Chunk(materialsOfSizes(1)),
		Chunk(materialsOfSizes(2)),
		Chunk(materialsOfSizes(3)),
		Chunk(materialsOfSizes(4)),
	}

	partials, err := NewAnalyzer(client).AnalyzeAll(context.Background(), chunks, QueryContext{Mode: domain.DailyDigest}, 3)
	require.NoError(t, err)
	require.Len(t, partials, 4)
	assert.Equal(t, 4, client.count(llm.TaskChunk))

	for _, p := range partials {
		assert.Equal(t, "chunk result", p.Text)
	}
}

func TestAnalyzeAllWrapsChunkPosition(t *testing.T) {
	client := newScriptedLLM(1000)
	client.fail[llm.TaskChunk] = errors.New("timeout")

	_, err := NewAnalyzer(client).AnalyzeAll(context.Background(), []Chunk{Chunk(materialsOfSizes(1))}, QueryContext{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1 of 1")
}
