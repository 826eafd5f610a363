package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/platform/config"
)

func TestAnalyzeRequest(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opts    AnalyzeOptions
		mode    domain.AnalysisMode
		date    string
		wantErr bool
	}{
		{name: "trend", opts: AnalyzeOptions{Category: "games", Query: "консоли"}, mode: domain.TrendQuery},
		{name: "daily today", opts: AnalyzeOptions{Category: "games"}, mode: domain.DailyDigest, date: "2024-05-10"},
		{name: "daily date", opts: AnalyzeOptions{Category: "games", Date: "2024-05-01"}, mode: domain.DailyDigest, date: "2024-05-01"},
		{name: "weekly", opts: AnalyzeOptions{Category: "games", Date: "2024-05-01", Weekly: true}, mode: domain.WeeklyDigest, date: "2024-05-01"},
		{name: "bad date", opts: AnalyzeOptions{Category: "games", Date: "01/05/2024"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := analyzeRequest(tt.opts, now, time.UTC)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.mode, req.Mode)
			assert.Equal(t, tt.opts.Category, req.Category)

			if tt.date != "" {
				assert.Equal(t, tt.date, req.Date.Format(time.DateOnly))
			}
		})
	}
}

func TestAnalysisSettingsFromConfig(t *testing.T) {
	a := New(&config.Config{
		TrendReservedFraction:   0.2,
		DailyReservedFraction:   0.2,
		WeeklyReservedFraction:  0.3,
		TrendSafetyMargin:       1.0,
		DigestSafetyMargin:      1.2,
		ScoreThreshold:          0.35,
		ChunkParallelism:        2,
		ThemeExtractionDisabled: true,
	}, nil, nil)

	s := a.analysisSettings()

	assert.InDelta(t, 0.3, s.WeeklyReserved, 1e-9)
	assert.InDelta(t, 1.2, s.DigestMargin, 1e-9)
	assert.Equal(t, 2, s.ChunkParallelism)
	assert.False(t, s.ExtractTheme)
}

func TestNewBotAPIRequiresToken(t *testing.T) {
	a := New(&config.Config{}, nil, nil)

	_, err := a.newBotAPI()
	require.ErrorIs(t, err, ErrNoBotToken)
}
