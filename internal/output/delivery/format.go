package delivery

import (
	"fmt"
	"strings"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

const (
	headerWeekly     = "✅ Анализ новостей за неделю завершен!"
	headerDaily      = "✅ Анализ новостей за сутки завершен!"
	headerTrend      = "✅ Анализ тренда по запросу завершен!"
	resultsTitle     = "📝 Результаты анализа:\n"
	continuationText = "📝 Продолжение анализа:\n"
	errorPrefix      = "❌ Ошибка: "

	// Header fields come from LLM output and user input; they are capped so
	// the header always leaves minBodyRoom units for the body.
	maxThemeLength    = 300
	maxCategoryLength = 200
	minBodyRoom       = 1024

	digestHeaderFmt       = "📰 Ежедневный дайджест новостей за %s\n\n📊 Всего проанализировано материалов: %d\n\n"
	digestContinuationFmt = "📰 Продолжение дайджеста (часть %d):\n"
)

// ErrorMessage renders a user-visible failure.
func ErrorMessage(message string) string {
	return errorPrefix + message
}

// ResultMessages renders an analysis result as one or more messages.
func ResultMessages(result domain.AnalysisResult) []string {
	if s, ok := result.AsSuccess(); ok {
		return AnalysisMessages(s)
	}

	e, _ := result.AsError()

	return SplitMessage(ErrorMessage(e.Message), MaxMessageLength)
}

// AnalysisMessages renders a successful analysis with its header. Parts after
// the first carry a continuation marker.
func AnalysisMessages(s domain.Success) []string {
	header := analysisHeader(s)

	full := header + resultsTitle + s.Analysis
	if textLen(full) <= MaxMessageLength {
		return []string{full}
	}

	first := header + resultsTitle
	room := bodyRoom(max(textLen(first), textLen(continuationText)))

	pieces := SplitMessage(s.Analysis, room)
	parts := make([]string, 0, len(pieces))

	for i, p := range pieces {
		if i == 0 {
			parts = append(parts, first+p)
			continue
		}

		parts = append(parts, continuationText+p)
	}

	return parts
}

func analysisHeader(s domain.Success) string {
	var sb strings.Builder

	switch s.Mode {
	case domain.WeeklyDigest:
		sb.WriteString(headerWeekly)
	case domain.DailyDigest:
		sb.WriteString(headerDaily)
	default:
		sb.WriteString(headerTrend)
	}

	sb.WriteString("\n\n")

	if s.Theme != "" {
		fmt.Fprintf(&sb, "🔎 Тема: %s\n", truncate(s.Theme, maxThemeLength))
	}

	if s.Category != "" {
		fmt.Fprintf(&sb, "📂 Категория: %s\n", truncate(s.Category, maxCategoryLength))
	}

	if s.Period != "" {
		fmt.Fprintf(&sb, "📅 Дата: %s\n", s.Period)
	}

	fmt.Fprintf(&sb, "📊 Проанализировано материалов: %d\n\n", s.MaterialsCount)

	return sb.String()
}

// DigestMessages renders a daily digest body under the digest header.
func DigestMessages(date string, totalMaterials int, body string) []string {
	header := fmt.Sprintf(digestHeaderFmt, date, totalMaterials)

	full := header + body
	if textLen(full) <= MaxMessageLength {
		return []string{full}
	}

	longestPrefix := textLen(fmt.Sprintf(digestContinuationFmt, 999))
	room := bodyRoom(max(textLen(header), longestPrefix))

	pieces := SplitMessage(body, room)
	parts := make([]string, 0, len(pieces))

	for i, p := range pieces {
		if i == 0 {
			parts = append(parts, header+p)
			continue
		}

		parts = append(parts, fmt.Sprintf(digestContinuationFmt, i+1)+p)
	}

	return parts
}

// CategoryResult is one category section of a subscriber digest.
type CategoryResult struct {
	Category string
	Result   domain.AnalysisResult
}

// SubscriberDigest renders the combined daily digest of several categories.
func SubscriberDigest(date string, results []CategoryResult) []string {
	var (
		sb    strings.Builder
		total int
	)

	for _, r := range results {
		fmt.Fprintf(&sb, "📌 Категория: %s\n", r.Category)

		s, ok := r.Result.AsSuccess()
		if !ok {
			e, _ := r.Result.AsError()
			fmt.Fprintf(&sb, "%s\n\n", ErrorMessage(e.Message))

			continue
		}

		total += s.MaterialsCount
		fmt.Fprintf(&sb, "📊 Материалов: %d\n📝 Анализ:\n%s\n\n", s.MaterialsCount, s.Analysis)
	}

	return DigestMessages(date, total, strings.TrimRight(sb.String(), "\n"))
}

// bodyRoom is the space left for the body after a prefix of prefixLen units.
func bodyRoom(prefixLen int) int {
	return max(MaxMessageLength-prefixLen, minBodyRoom)
}

// truncate shortens s to at most limit UTF-16 units, marking the cut with "…".
func truncate(s string, limit int) string {
	if textLen(s) <= limit {
		return s
	}

	return splitUnits(s, limit-1)[0] + "…"
}
