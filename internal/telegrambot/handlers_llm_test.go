package telegrambot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
)

type fakeLLMStatus struct {
	statuses  []llm.ProviderStatus
	budget    llm.BudgetStatus
	overrides map[llm.TaskType]string
}

func (f fakeLLMStatus) GetProviderStatuses() []llm.ProviderStatus   { return f.statuses }
func (f fakeLLMStatus) BudgetStatus() llm.BudgetStatus              { return f.budget }
func (f fakeLLMStatus) TaskModelOverrides() map[llm.TaskType]string { return f.overrides }

type fakeEmbeddingStatus []embeddings.ProviderName

func (f fakeEmbeddingStatus) ProviderNames() []embeddings.ProviderName { return f }

func TestLLMStatusForAdmin(t *testing.T) {
	h := newHarness(t)
	h.bot.llm = fakeLLMStatus{
		statuses: []llm.ProviderStatus{
			{Name: llm.ProviderDeepSeek, Model: "deepseek-chat", Available: true, CircuitBreakerOK: true},
			{Name: llm.ProviderOpenAI, Model: "gpt-4o-mini", Available: true},
			{Name: llm.ProviderGoogle, Model: "gemini-1.5-pro"},
		},
		budget: llm.BudgetStatus{Day: "2024-05-10", Used: 800, Limit: 1000, Level: llm.BudgetWarning},
		overrides: map[llm.TaskType]string{
			llm.TaskSynthesis: "gpt-4o",
			llm.TaskChunk:     "gpt-4o-mini",
		},
	}
	h.bot.embeddings = fakeEmbeddingStatus{embeddings.ProviderOpenAI, embeddings.ProviderGoogle}

	h.bot.handleMessage(context.Background(), command("/llm", adminID))

	text := h.replier.last()
	assert.Contains(t, text, "✅ deepseek (deepseek-chat), основной\n")
	assert.Contains(t, text, "⚠️ openai (gpt-4o-mini)\n")
	assert.Contains(t, text, "❌ google (gemini-1.5-pro)\n")
	assert.Contains(t, text, "• chunk: gpt-4o-mini\n• synthesis: gpt-4o")
	assert.Contains(t, text, "Токены за 2024-05-10: 800 из 1000 (80%, warning)")
	assert.Contains(t, text, "Эмбеддинги: openai → google")
}

func TestLLMStatusWithoutLimitOrOverrides(t *testing.T) {
	h := newHarness(t)
	h.bot.llm = fakeLLMStatus{budget: llm.BudgetStatus{Day: "2024-05-10", Used: 42}}

	h.bot.handleMessage(context.Background(), command("/llm", adminID))

	text := h.replier.last()
	assert.Contains(t, text, "Провайдеры не настроены.")
	assert.Contains(t, text, "Модели по задачам: по умолчанию")
	assert.Contains(t, text, "Токены за 2024-05-10: 42 (без лимита)")
	assert.NotContains(t, text, "Эмбеддинги")
}

func TestLLMStatusRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	h.bot.llm = fakeLLMStatus{}

	h.bot.handleMessage(context.Background(), command("/llm", 1))

	assert.Equal(t, msgAdminOnly, h.replier.last())
}

func TestLLMStatusWithoutClient(t *testing.T) {
	h := newHarness(t)

	h.bot.handleMessage(context.Background(), command("/llm", adminID))

	assert.Equal(t, msgLLMUnavailable, h.replier.last())
}
