package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validation errors.
var (
	ErrReservedFraction = errors.New("reserved fraction must be in [0, 1)")
	ErrSafetyMargin     = errors.New("safety margin must be >= 1")
	ErrWorkers          = errors.New("worker count must be positive")
)

type Config struct {
	AppEnv      string  `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string  `env:"POSTGRES_DSN,required"`
	BotToken    string  `env:"TELEGRAM_BOT_TOKEN"`
	AdminIDs    []int64 `env:"ADMIN_IDS" envSeparator:","`
	HealthPort  int     `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool.
	DBMaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns          int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"30s"`

	// MTProto user client used to read channels.
	TGAPIID       int    `env:"TG_API_ID"`
	TGAPIHash     string `env:"TG_API_HASH"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	// LLM providers.
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"deepseek"`
	LLMFallbacks        []string      `env:"LLM_FALLBACKS" envSeparator:","`
	LLMModel            string        `env:"LLM_MODEL"`
	LLMTemperature      float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxOutputTokens  int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"4096"`
	LLMRateLimitRPS     float64       `env:"LLM_RPS" envDefault:"1"`
	LLMDailyTokenBudget int64         `env:"LLM_DAILY_TOKEN_BUDGET" envDefault:"0"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`
	DeepSeekAPIKey      string        `env:"DEEPSEEK_API_KEY"`
	DeepSeekModel       string        `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
	DeepSeekBaseURL     string        `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIModel         string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel      string        `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`
	GoogleAPIKey        string        `env:"GOOGLE_API_KEY"`
	GoogleModel         string        `env:"GOOGLE_MODEL" envDefault:"gemini-1.5-pro"`

	// Per-task model overrides, applied on whichever provider serves the call.
	LLMModelTheme     string `env:"LLM_MODEL_THEME"`
	LLMModelFilter    string `env:"LLM_MODEL_FILTER"`
	LLMModelAnalysis  string `env:"LLM_MODEL_ANALYSIS"`
	LLMModelChunk     string `env:"LLM_MODEL_CHUNK"`
	LLMModelSynthesis string `env:"LLM_MODEL_SYNTHESIS"`

	// Embeddings.
	EmbeddingProviderOrder string `env:"EMBEDDING_PROVIDER_ORDER" envDefault:"openai,google"`
	EmbeddingModel         string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingGoogleModel   string `env:"EMBEDDING_GOOGLE_MODEL" envDefault:"text-embedding-004"`
	EmbeddingDimensions    int    `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`

	// Analysis pipeline.
	TokenizerScheme         string  `env:"TOKENIZER_SCHEME" envDefault:"cl100k_base"`
	TrendReservedFraction   float64 `env:"ANALYSIS_TREND_RESERVED" envDefault:"0.2"`
	DailyReservedFraction   float64 `env:"ANALYSIS_DAILY_RESERVED" envDefault:"0.2"`
	WeeklyReservedFraction  float64 `env:"ANALYSIS_WEEKLY_RESERVED" envDefault:"0.3"`
	TrendSafetyMargin       float64 `env:"ANALYSIS_TREND_MARGIN" envDefault:"1.0"`
	DigestSafetyMargin      float64 `env:"ANALYSIS_DIGEST_MARGIN" envDefault:"1.2"`
	ScoreThreshold          float32 `env:"ANALYSIS_SCORE_THRESHOLD" envDefault:"0.35"`
	SearchLimit             int     `env:"ANALYSIS_SEARCH_LIMIT" envDefault:"200"`
	ChunkParallelism        int     `env:"ANALYSIS_CHUNK_PARALLELISM" envDefault:"1"`
	AnalysisWorkers         int     `env:"ANALYSIS_WORKERS" envDefault:"4"`
	AnalysisQueueSize       int     `env:"ANALYSIS_QUEUE_SIZE" envDefault:"32"`
	ThemeExtractionDisabled bool    `env:"ANALYSIS_THEME_EXTRACTION_DISABLED" envDefault:"false"`

	// Ingestion.
	IngestInterval      time.Duration `env:"INGEST_INTERVAL" envDefault:"1h"`
	IngestTelegramLimit int           `env:"INGEST_TELEGRAM_LIMIT" envDefault:"50"`
	IngestRetries       int           `env:"INGEST_RETRIES" envDefault:"3"`
	IngestRetryDelay    time.Duration `env:"INGEST_RETRY_DELAY" envDefault:"1s"`
	IngestHTTPTimeout   time.Duration `env:"INGEST_HTTP_TIMEOUT" envDefault:"30s"`
	IngestConcurrency   int           `env:"INGEST_CONCURRENCY" envDefault:"4"`
	IngestUserAgent     string        `env:"INGEST_USER_AGENT" envDefault:"Mozilla/5.0 (compatible; TrendDigestBot/1.0)"`

	// Scheduled digests.
	DailyDigestTime   string        `env:"DAILY_DIGEST_TIME" envDefault:"09:00"`
	DigestTimezone    string        `env:"DIGEST_TIMEZONE" envDefault:"UTC"`
	WeeklyDigestDay   time.Weekday  `env:"WEEKLY_DIGEST_DAY" envDefault:"1"`
	WeeklyDigestHour  int           `env:"WEEKLY_DIGEST_HOUR" envDefault:"10"`
	SchedulerTick     time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"1m"`
	DigestCacheSize   int           `env:"DIGEST_CACHE_SIZE" envDefault:"256"`
	DigestCacheTTL    time.Duration `env:"DIGEST_CACHE_TTL" envDefault:"6h"`
	DigestRetention   time.Duration `env:"DIGEST_RETENTION" envDefault:"720h"`
	DeliveryRateLimit float64       `env:"DELIVERY_RPS" envDefault:"2"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyAliases(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	for _, f := range []float64{c.TrendReservedFraction, c.DailyReservedFraction, c.WeeklyReservedFraction} {
		if f < 0 || f >= 1 {
			return fmt.Errorf("%w: got %v", ErrReservedFraction, f)
		}
	}

	for _, m := range []float64{c.TrendSafetyMargin, c.DigestSafetyMargin} {
		if m < 1 {
			return fmt.Errorf("%w: got %v", ErrSafetyMargin, m)
		}
	}

	if c.AnalysisWorkers <= 0 {
		return ErrWorkers
	}

	return nil
}

// Older deployments used these names.
func applyAliases(cfg *Config) {
	if !hasEnv("TELEGRAM_BOT_TOKEN") {
		setStringFromEnv("BOT_TOKEN", &cfg.BotToken)
	}

	if !hasEnv("GOOGLE_API_KEY") {
		setStringFromEnv("GEMINI_API_KEY", &cfg.GoogleAPIKey)
	}

	if !hasEnv("GOOGLE_MODEL") {
		setStringFromEnv("GEMINI_MODEL", &cfg.GoogleModel)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}
