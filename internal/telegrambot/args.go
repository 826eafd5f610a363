package telegrambot

import (
	"fmt"
	"strings"
	"time"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
)

// userError is an argument error whose text is shown to the user as is.
type userError string

func (e userError) Error() string { return string(e) }

const (
	errAnalyzeUsage   userError = "Формат: /analyze <категория> | <запрос>"
	errDigestUsage    userError = "Формат: /digest <категория> [ГГГГ-ММ-ДД]"
	errWeeklyUsage    userError = "Формат: /weekly <категория> [ГГГГ-ММ-ДД]"
	errAddSourceUsage userError = "Формат: /addsource <rss|telegram> <url> <категория>"
	errBadDate        userError = "Неверная дата, используйте формат ГГГГ-ММ-ДД или ДД.ММ.ГГГГ"
	errFutureDate     userError = "Дата не может быть в будущем"
)

var dateLayouts = []string{"2006-01-02", "02.01.2006"}

// parseAnalyze splits "<category> | <query>".
func parseAnalyze(args string) (analysis.Request, error) {
	category, query, ok := strings.Cut(args, "|")
	if !ok {
		return analysis.Request{}, errAnalyzeUsage
	}

	category = strings.TrimSpace(category)
	query = strings.TrimSpace(query)

	if category == "" || query == "" {
		return analysis.Request{}, errAnalyzeUsage
	}

	return analysis.Request{Mode: domain.TrendQuery, Category: category, Query: query}, nil
}

// parseDigest reads "<category> [date]". Without a date the daily digest
// covers today and the weekly digest covers the last seven days.
func parseDigest(args string, mode domain.AnalysisMode, today time.Time) (analysis.Request, error) {
	usage := errDigestUsage
	if mode == domain.WeeklyDigest {
		usage = errWeeklyUsage
	}

	fields := strings.Fields(args)
	if len(fields) == 0 {
		return analysis.Request{}, usage
	}

	date := today
	if mode == domain.WeeklyDigest {
		date = today.AddDate(0, 0, -6)
	}

	category := strings.Join(fields, " ")

	if last := fields[len(fields)-1]; len(fields) > 1 && looksLikeDate(last) {
		parsed, err := parseDate(last, today.Location())
		if err != nil {
			return analysis.Request{}, err
		}

		if parsed.After(today) {
			return analysis.Request{}, errFutureDate
		}

		date = parsed
		category = strings.Join(fields[:len(fields)-1], " ")
	}

	return analysis.Request{Mode: mode, Category: category, Date: date}, nil
}

func looksLikeDate(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' && r != '.' {
			return false
		}
	}

	return true
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errBadDate
}

type sourceArgs struct {
	sourceType string
	url        string
	category   string
}

// parseAddSource reads "<rss|telegram> <url> <category...>".
func parseAddSource(args string) (sourceArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return sourceArgs{}, errAddSourceUsage
	}

	sourceType := strings.ToLower(fields[0])
	if sourceType != domain.SourceTypeRSS && sourceType != domain.SourceTypeTelegram {
		return sourceArgs{}, errAddSourceUsage
	}

	return sourceArgs{
		sourceType: sourceType,
		url:        fields[1],
		category:   strings.Join(fields[2:], " "),
	}, nil
}

func containsFold(list []string, s string) (string, bool) {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}

	return "", false
}

func formatList(title string, items []string) string {
	var sb strings.Builder

	sb.WriteString(title)

	for _, item := range items {
		fmt.Fprintf(&sb, "\n• %s", item)
	}

	return sb.String()
}
