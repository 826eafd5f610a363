package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/app"
	"github.com/lueurxax/trend-digest-bot/internal/platform/config"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

const usage = "Usage: %s --mode=[bot|ingest|scheduler|analyze|import]"

type flags struct {
	mode     string
	once     bool
	category string
	query    string
	date     string
	week     bool
	file     string
}

func main() {
	var f flags

	flag.StringVar(&f.mode, "mode", "", "Service mode (bot, ingest, scheduler, analyze, import)")
	flag.BoolVar(&f.once, "once", false, "Run once and exit (ingest and scheduler modes)")
	flag.StringVar(&f.category, "category", "", "Category to analyze")
	flag.StringVar(&f.query, "query", "", "Trend query; without it a digest is built")
	flag.StringVar(&f.date, "date", "", "Digest date or week start, YYYY-MM-DD")
	flag.BoolVar(&f.week, "week", false, "Build the weekly digest instead of the daily one")
	flag.StringVar(&f.file, "file", "", "CSV file with url,type,category columns (import mode)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
		SearchLimit:       cfg.SearchLimit,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if f.mode == "bot" || f.mode == "ingest" || f.mode == "scheduler" {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	if err := runMode(ctx, application, f); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, f flags) error {
	switch f.mode {
	case "bot":
		return application.RunBot(ctx)
	case "ingest":
		return application.RunIngest(ctx, f.once)
	case "scheduler":
		return application.RunScheduler(ctx, f.once)
	case "analyze":
		return application.RunAnalyze(ctx, app.AnalyzeOptions{
			Category: f.category,
			Query:    f.query,
			Date:     f.date,
			Weekly:   f.week,
		}, os.Stdout)
	case "import":
		if f.file == "" {
			log.Fatalf("Usage: %s --mode=import --file=sources.csv", os.Args[0])
		}

		return application.RunImport(ctx, f.file)
	default:
		log.Fatalf(usage, os.Args[0])

		return nil
	}
}
