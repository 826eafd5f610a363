package telegrambot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
)

const msgLLMUnavailable = "LLM-клиент не подключен."

// handleLLMStatus shows provider health, model overrides and today's token spend.
func (b *Bot) handleLLMStatus(ctx context.Context, msg *tgbotapi.Message) {
	if b.llm == nil {
		b.reply(ctx, msg.Chat.ID, msgLLMUnavailable)
		return
	}

	var sb strings.Builder

	sb.WriteString("🤖 LLM-провайдеры\n\n")
	writeProviderStatuses(&sb, b.llm.GetProviderStatuses())
	writeModelOverrides(&sb, b.llm.TaskModelOverrides())
	writeBudget(&sb, b.llm.BudgetStatus())

	if b.embeddings != nil {
		names := b.embeddings.ProviderNames()
		parts := make([]string, len(names))

		for i, n := range names {
			parts[i] = string(n)
		}

		fmt.Fprintf(&sb, "\nЭмбеддинги: %s\n", orNone(strings.Join(parts, " → ")))
	}

	sb.WriteString("\n✅ работает | ⚠️ цепь разомкнута | ❌ недоступен")

	b.reply(ctx, msg.Chat.ID, sb.String())
}

func writeProviderStatuses(sb *strings.Builder, statuses []llm.ProviderStatus) {
	if len(statuses) == 0 {
		sb.WriteString("Провайдеры не настроены.\n")
		return
	}

	for i, s := range statuses {
		fmt.Fprintf(sb, "%s %s (%s)", providerIcon(s), s.Name, s.Model)

		if i == 0 {
			sb.WriteString(", основной")
		}

		sb.WriteString("\n")
	}
}

func providerIcon(s llm.ProviderStatus) string {
	switch {
	case s.Available && s.CircuitBreakerOK:
		return "✅"
	case s.Available:
		return "⚠️"
	default:
		return "❌"
	}
}

func writeModelOverrides(sb *strings.Builder, overrides map[llm.TaskType]string) {
	sb.WriteString("\nМодели по задачам: ")

	if len(overrides) == 0 {
		sb.WriteString("по умолчанию\n")
		return
	}

	tasks := make([]string, 0, len(overrides))
	for task := range overrides {
		tasks = append(tasks, string(task))
	}

	sort.Strings(tasks)

	for _, task := range tasks {
		fmt.Fprintf(sb, "\n• %s: %s", task, overrides[llm.TaskType(task)])
	}

	sb.WriteString("\n")
}

func writeBudget(sb *strings.Builder, s llm.BudgetStatus) {
	if s.Limit <= 0 {
		fmt.Fprintf(sb, "\nТокены за %s: %d (без лимита)\n", s.Day, s.Used)
		return
	}

	fmt.Fprintf(sb, "\nТокены за %s: %d из %d (%.0f%%, %s)\n", s.Day, s.Used, s.Limit, s.Fraction()*100, s.Level)
}

func orNone(s string) string {
	if s == "" {
		return "нет"
	}

	return s
}
