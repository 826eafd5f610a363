package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
)

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, "")
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, "deepseek", cfg.LLMProvider)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-6)
	assert.InDelta(t, 0.2, cfg.TrendReservedFraction, 1e-9)
	assert.InDelta(t, 0.3, cfg.WeeklyReservedFraction, 1e-9)
	assert.InDelta(t, 1.2, cfg.DigestSafetyMargin, 1e-9)
	assert.InDelta(t, 0.35, cfg.ScoreThreshold, 1e-6)
	assert.Equal(t, 50, cfg.IngestTelegramLimit)
	assert.Equal(t, 3, cfg.IngestRetries)
	assert.Equal(t, time.Second, cfg.IngestRetryDelay)
	assert.Equal(t, "09:00", cfg.DailyDigestTime)
	assert.Equal(t, time.Monday, cfg.WeeklyDigestDay)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("ADMIN_IDS", "11,22")
	t.Setenv("LLM_FALLBACKS", "openai,google")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 22}, cfg.AdminIDs)
	assert.Equal(t, []string{"openai", "google"}, cfg.LLMFallbacks)
}

func TestLoad_TaskModels(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("LLM_MODEL_SYNTHESIS", "gpt-4o")
	t.Setenv("LLM_MODEL_THEME", "gpt-4o-mini")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLMModelSynthesis)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModelTheme)
	assert.Empty(t, cfg.LLMModelAnalysis)
}

func TestLoad_Aliases(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, "gem-key", cfg.GoogleAPIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TrendReservedFraction:  0.2,
			DailyReservedFraction:  0.2,
			WeeklyReservedFraction: 0.3,
			TrendSafetyMargin:      1,
			DigestSafetyMargin:     1.2,
			AnalysisWorkers:        1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"reserved too high", func(c *Config) { c.WeeklyReservedFraction = 1 }, ErrReservedFraction},
		{"reserved negative", func(c *Config) { c.TrendReservedFraction = -0.1 }, ErrReservedFraction},
		{"margin below one", func(c *Config) { c.DigestSafetyMargin = 0.5 }, ErrSafetyMargin},
		{"no workers", func(c *Config) { c.AnalysisWorkers = 0 }, ErrWorkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
