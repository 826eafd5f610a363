package telegrambot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

func TestParseAnalyze(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		category string
		query    string
		wantErr  bool
	}{
		{name: "category and query", args: "games | новые консоли", category: "games", query: "новые консоли"},
		{name: "pipe inside query", args: "ai|gpt | claude", category: "ai", query: "gpt | claude"},
		{name: "no pipe", args: "games новые консоли", wantErr: true},
		{name: "empty query", args: "games |  ", wantErr: true},
		{name: "empty category", args: " | query", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseAnalyze(tt.args)
			if tt.wantErr {
				require.ErrorIs(t, err, errAnalyzeUsage)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.TrendQuery, req.Mode)
			assert.Equal(t, tt.category, req.Category)
			assert.Equal(t, tt.query, req.Query)
		})
	}
}

func TestParseDigest(t *testing.T) {
	today := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		args     string
		mode     domain.AnalysisMode
		category string
		date     time.Time
		wantErr  error
	}{
		{name: "daily default", args: "games", mode: domain.DailyDigest, category: "games", date: today},
		{name: "weekly default", args: "games", mode: domain.WeeklyDigest, category: "games", date: day(4)},
		{name: "iso date", args: "games 2024-05-01", mode: domain.DailyDigest, category: "games", date: day(1)},
		{name: "dotted date", args: "video games 01.05.2024", mode: domain.WeeklyDigest, category: "video games", date: day(1)},
		{name: "numeric category", args: "2024", mode: domain.DailyDigest, category: "2024", date: today},
		{name: "bad date", args: "games 2024-13-01", mode: domain.DailyDigest, wantErr: errBadDate},
		{name: "future date", args: "games 2024-05-11", mode: domain.DailyDigest, wantErr: errFutureDate},
		{name: "daily usage", args: "", mode: domain.DailyDigest, wantErr: errDigestUsage},
		{name: "weekly usage", args: " ", mode: domain.WeeklyDigest, wantErr: errWeeklyUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseDigest(tt.args, tt.mode, today)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.mode, req.Mode)
			assert.Equal(t, tt.category, req.Category)
			assert.True(t, tt.date.Equal(req.Date), "date %s, want %s", req.Date, tt.date)
		})
	}
}

func TestParseAddSource(t *testing.T) {
	got, err := parseAddSource("RSS https://example.com/feed.xml video games")
	require.NoError(t, err)
	assert.Equal(t, sourceArgs{sourceType: "rss", url: "https://example.com/feed.xml", category: "video games"}, got)

	got, err = parseAddSource("telegram @channel news")
	require.NoError(t, err)
	assert.Equal(t, "telegram", got.sourceType)

	_, err = parseAddSource("atom https://example.com news")
	require.ErrorIs(t, err, errAddSourceUsage)

	_, err = parseAddSource("rss https://example.com")
	require.ErrorIs(t, err, errAddSourceUsage)
}

func TestContainsFold(t *testing.T) {
	got, ok := containsFold([]string{"Games", "AI"}, "games")
	assert.True(t, ok)
	assert.Equal(t, "Games", got)

	_, ok = containsFold([]string{"Games"}, "crypto")
	assert.False(t, ok)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "title:\n• a\n• b", formatList("title:", []string{"a", "b"}))
}
