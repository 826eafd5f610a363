// Package app wires the dependencies and exposes one method per process mode:
//
//   - Bot: Telegram bot answering commands, with the analysis pool behind it
//   - Ingest: periodic RSS and Telegram ingestion with vectorization
//   - Scheduler: daily and weekly digests for subscribers
//   - Analyze: one analysis from the command line, printed to stdout
//   - Import: CSV source import
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
	"github.com/lueurxax/trend-digest-bot/internal/core/tokens"
	"github.com/lueurxax/trend-digest-bot/internal/ingest"
	"github.com/lueurxax/trend-digest-bot/internal/ingest/rss"
	"github.com/lueurxax/trend-digest-bot/internal/ingest/telegram"
	"github.com/lueurxax/trend-digest-bot/internal/output/delivery"
	"github.com/lueurxax/trend-digest-bot/internal/platform/config"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
	"github.com/lueurxax/trend-digest-bot/internal/platform/schedule"
	"github.com/lueurxax/trend-digest-bot/internal/platform/worker"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
	"github.com/lueurxax/trend-digest-bot/internal/process/digests"
	"github.com/lueurxax/trend-digest-bot/internal/process/dispatch"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
	"github.com/lueurxax/trend-digest-bot/internal/telegrambot"
)

// ErrNoBotToken is returned by modes that send Telegram messages without a token.
var ErrNoBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

const errBotInit = "bot initialization failed: %w"

// AnalyzeOptions are the command-line parameters of a one-shot analysis.
type AnalyzeOptions struct {
	Category string
	Query    string
	Date     string // YYYY-MM-DD, digests only
	Weekly   bool
}

// App holds the application dependencies and runs the process modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer serves /healthz, /readyz and /metrics until ctx is done.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunBot runs the Telegram bot with the analysis pool.
func (a *App) RunBot(ctx context.Context) error {
	a.logger.Info().Msg("Starting bot mode")

	api, err := a.newBotAPI()
	if err != nil {
		return err
	}

	loc, err := schedule.Location(a.cfg.DigestTimezone)
	if err != nil {
		return err
	}

	sender := delivery.NewSender(api, a.cfg.DeliveryRateLimit, a.logger)
	llmClient := a.newLLMClient(ctx)
	embedder := a.newEmbeddingClient(ctx)
	service := a.newDigestService(llmClient, embedder, loc)

	pool := dispatch.NewPool(service, sender, a.cfg.AnalysisWorkers, a.cfg.AnalysisQueueSize, a.logger)
	pool.Start(ctx)

	b := telegrambot.New(api, sender, a.database, pool, ingestRunner{app: a}, telegrambot.Options{
		AdminIDs:   a.cfg.AdminIDs,
		Location:   loc,
		LLM:        llmClient,
		Embeddings: embedder,
	}, a.logger)

	err = b.Run(ctx)

	pool.Wait()

	if err != nil {
		return fmt.Errorf("bot run: %w", err)
	}

	return nil
}

// RunIngest ingests all sources every INGEST_INTERVAL, or once.
func (a *App) RunIngest(ctx context.Context, once bool) error {
	a.logger.Info().Bool("once", once).Msg("Starting ingest mode")

	if once {
		report, err := a.ingestOnce(ctx)
		if err != nil {
			return err
		}

		a.logReport(report)

		return nil
	}

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:       "ingest",
		Interval:   a.cfg.IngestInterval,
		RunOnStart: true,
		Logger:     a.logger,
		OnTick: func(ctx context.Context) {
			report, err := a.ingestOnce(ctx)
			if err != nil {
				a.logger.Error().Err(err).Msg("ingest run failed")
				return
			}

			a.logReport(report)
		},
	})
}

// RunScheduler sends scheduled digests. With once it sends today's daily
// digest immediately and exits.
func (a *App) RunScheduler(ctx context.Context, once bool) error {
	a.logger.Info().Bool("once", once).Msg("Starting scheduler mode")

	api, err := a.newBotAPI()
	if err != nil {
		return err
	}

	loc, err := schedule.Location(a.cfg.DigestTimezone)
	if err != nil {
		return err
	}

	dailyAt, err := schedule.ParseClock(a.cfg.DailyDigestTime)
	if err != nil {
		return fmt.Errorf("DAILY_DIGEST_TIME: %w", err)
	}

	sender := delivery.NewSender(api, a.cfg.DeliveryRateLimit, a.logger)
	sched := digests.NewScheduler(a.newDigestService(a.newLLMClient(ctx), a.newEmbeddingClient(ctx), loc), a.database, sender, digests.Config{
		DailyAt:    dailyAt,
		WeeklyDay:  a.cfg.WeeklyDigestDay,
		WeeklyHour: a.cfg.WeeklyDigestHour,
		Location:   loc,
		Tick:       a.cfg.SchedulerTick,
		Retention:  a.cfg.DigestRetention,
	}, a.logger).WithLocker(a.database)

	if once {
		now := time.Now().In(loc)

		return sched.SendDaily(ctx, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc))
	}

	return sched.Run(ctx)
}

// RunAnalyze runs one analysis and writes the rendered messages to out.
func (a *App) RunAnalyze(ctx context.Context, opts AnalyzeOptions, out io.Writer) error {
	loc, err := schedule.Location(a.cfg.DigestTimezone)
	if err != nil {
		return err
	}

	req, err := analyzeRequest(opts, time.Now().In(loc), loc)
	if err != nil {
		return err
	}

	a.logger.Info().Str("mode", req.Mode.String()).Str("category", req.Category).Msg("Starting analysis")

	result := a.newDigestService(a.newLLMClient(ctx), a.newEmbeddingClient(ctx), loc).Run(ctx, req)

	for _, part := range delivery.ResultMessages(result) {
		if _, err := fmt.Fprintln(out, part); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	return nil
}

// RunImport imports sources from a CSV file.
func (a *App) RunImport(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	report, err := ingest.ImportSources(ctx, a.database, f, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info().Int("added", report.Added).Int("skipped", report.Skipped).Int("errors", report.Errors).Msg("CSV import finished")

	return nil
}

func analyzeRequest(opts AnalyzeOptions, now time.Time, loc *time.Location) (analysis.Request, error) {
	if opts.Query != "" {
		return analysis.Request{Mode: domain.TrendQuery, Category: opts.Category, Query: opts.Query}, nil
	}

	date := schedule.Today(now, loc)
	if opts.Date != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, opts.Date, loc)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("parse --date: %w", err)
		}

		date = parsed
	}

	mode := domain.DailyDigest
	if opts.Weekly {
		mode = domain.WeeklyDigest
	}

	return analysis.Request{Mode: mode, Category: opts.Category, Date: date}, nil
}

func (a *App) newBotAPI() (*tgbotapi.BotAPI, error) {
	if a.cfg.BotToken == "" {
		return nil, ErrNoBotToken
	}

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf(errBotInit, err)
	}

	return api, nil
}

func (a *App) newLLMClient(ctx context.Context) *llm.Registry {
	return llm.New(ctx, a.cfg, a.logger)
}

func (a *App) newEmbeddingClient(ctx context.Context) *embeddings.Registry {
	return embeddings.NewClient(ctx, embeddings.Config{
		OpenAIAPIKey:    a.cfg.OpenAIAPIKey,
		OpenAIModel:     a.cfg.EmbeddingModel,
		OpenAIRateLimit: a.cfg.LLMRateLimitRPS,
		GoogleAPIKey:    a.cfg.GoogleAPIKey,
		GoogleModel:     a.cfg.EmbeddingGoogleModel,
		GoogleRateLimit: a.cfg.LLMRateLimitRPS,
		ProviderOrder:   a.cfg.EmbeddingProviderOrder,
		CircuitBreakerConfig: embeddings.CircuitBreakerConfig{
			Threshold:  a.cfg.LLMCircuitThreshold,
			ResetAfter: a.cfg.LLMCircuitTimeout,
		},
		TargetDimensions: a.cfg.EmbeddingDimensions,
	}, a.logger)
}

func (a *App) analysisSettings() analysis.Settings {
	return analysis.Settings{
		TrendReserved:    a.cfg.TrendReservedFraction,
		DailyReserved:    a.cfg.DailyReservedFraction,
		WeeklyReserved:   a.cfg.WeeklyReservedFraction,
		TrendMargin:      a.cfg.TrendSafetyMargin,
		DigestMargin:     a.cfg.DigestSafetyMargin,
		ScoreThreshold:   a.cfg.ScoreThreshold,
		ChunkParallelism: a.cfg.ChunkParallelism,
		ExtractTheme:     !a.cfg.ThemeExtractionDisabled,
	}
}

func (a *App) newOrchestrator(llmClient *llm.Registry, embedder *embeddings.Registry) *analysis.Orchestrator {
	counter := tokens.New(tokens.Scheme(a.cfg.TokenizerScheme), a.logger)

	return analysis.NewOrchestrator(
		a.database,
		embedder,
		llmClient,
		counter,
		a.analysisSettings(),
		a.logger,
	)
}

func (a *App) newDigestService(llmClient *llm.Registry, embedder *embeddings.Registry, loc *time.Location) *digests.Service {
	return digests.NewService(a.newOrchestrator(llmClient, embedder), a.database, a.cfg.DigestCacheSize, a.cfg.DigestCacheTTL, loc, a.logger)
}

// ingestOnce runs one ingestion pass. Telegram sources are read inside an
// MTProto session when API credentials are configured.
func (a *App) ingestOnce(ctx context.Context) (ingest.Report, error) {
	httpClient := &http.Client{Timeout: a.cfg.IngestHTTPTimeout}

	fetchers := map[string]ingest.Fetcher{
		domain.SourceTypeRSS: rss.New(httpClient, rss.Config{
			UserAgent:     a.cfg.IngestUserAgent,
			Timeout:       a.cfg.IngestHTTPTimeout,
			FetchArticles: true,
		}, a.logger),
	}

	ingester := func(ctx context.Context) (ingest.Report, error) {
		in := ingest.New(a.database, a.newEmbeddingClient(ctx), fetchers, ingest.Options{
			Retries:     a.cfg.IngestRetries,
			RetryDelay:  a.cfg.IngestRetryDelay,
			Concurrency: a.cfg.IngestConcurrency,
		}, a.logger)

		return in.Run(ctx)
	}

	if a.cfg.TGAPIID == 0 || a.cfg.TGAPIHash == "" {
		a.logger.Warn().Msg("TG_API_ID/TG_API_HASH not set, telegram sources are skipped")
		return ingester(ctx)
	}

	reader := telegram.New(telegram.Config{
		APIID:       a.cfg.TGAPIID,
		APIHash:     a.cfg.TGAPIHash,
		Phone:       a.cfg.TGPhone,
		Password:    a.cfg.TG2FAPassword,
		SessionPath: a.cfg.TGSessionPath,
		Limit:       a.cfg.IngestTelegramLimit,
	}, a.logger)

	fetchers[domain.SourceTypeTelegram] = reader

	var report ingest.Report

	err := reader.Run(ctx, func(ctx context.Context) error {
		var err error

		report, err = ingester(ctx)

		return err
	})
	if err != nil {
		return report, fmt.Errorf("telegram session: %w", err)
	}

	return report, nil
}

func (a *App) logReport(r ingest.Report) {
	a.logger.Info().
		Int("sources", r.Sources).
		Int("parsed", r.Parsed).
		Int("vectorized", r.Vectorized).
		Int("skipped", r.Skipped).
		Int("errors", len(r.Errors)).
		Dur("duration", r.Duration).
		Msg("ingest run finished")

	for _, e := range r.Errors {
		a.logger.Warn().Str("error", e).Msg("ingest source error")
	}
}

// ingestRunner lets the bot trigger an ingestion pass.
type ingestRunner struct {
	app *App
}

func (r ingestRunner) Run(ctx context.Context) (ingest.Report, error) {
	return r.app.ingestOnce(ctx)
}
