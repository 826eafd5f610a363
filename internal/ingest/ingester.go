// Package ingest collects materials from configured sources, embeds them and
// stores them for later retrieval.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

// ErrNoFetcher is returned for a source type without a registered fetcher.
var ErrNoFetcher = errors.New("no fetcher for source type")

const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
	logKeySource    = "source"
)

// Fetcher reads the current materials of one source.
type Fetcher interface {
	Fetch(ctx context.Context, source domain.Source) ([]domain.Material, error)
}

// Repository is the storage used by ingestion.
type Repository interface {
	ListSources(ctx context.Context, sourceType string) ([]domain.Source, error)
	MaterialExists(ctx context.Context, url string) (bool, error)
	SaveMaterial(ctx context.Context, m domain.Material, embedding []float32) (string, error)
}

var _ Repository = (*db.DB)(nil)

// Embedder vectorizes material texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Report summarizes one ingestion run.
type Report struct {
	Sources    int
	Parsed     int
	Vectorized int
	Skipped    int
	Errors     []string
	Duration   time.Duration
}

func (r *Report) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Options tune an Ingester.
type Options struct {
	Retries     int
	RetryDelay  time.Duration
	Concurrency int
	BatchSize   int
}

const defaultBatchSize = 16

// Ingester runs ingestion over all stored sources.
type Ingester struct {
	repo     Repository
	embedder Embedder
	fetchers map[string]Fetcher
	opts     Options
	logger   *zerolog.Logger
}

// New builds an Ingester. fetchers is keyed by source type.
func New(repo Repository, embedder Embedder, fetchers map[string]Fetcher, opts Options, logger *zerolog.Logger) *Ingester {
	if opts.Retries < 1 {
		opts.Retries = 1
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	l := logger.With().Str("component", "ingest").Logger()

	return &Ingester{repo: repo, embedder: embedder, fetchers: fetchers, opts: opts, logger: &l}
}

// Run ingests every source whose type has a fetcher. Per-source failures are
// recorded in the report; only listing sources can fail the run.
func (in *Ingester) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	sources, err := in.repo.ListSources(ctx, "")
	if err != nil {
		return Report{}, fmt.Errorf("list sources: %w", err)
	}

	report := Report{Sources: len(sources)}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)

	for _, src := range sources {
		g.Go(func() error {
			part := in.ingestSource(gctx, src)

			mu.Lock()
			report.Parsed += part.Parsed
			report.Vectorized += part.Vectorized
			report.Skipped += part.Skipped
			report.Errors = append(report.Errors, part.Errors...)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	report.Duration = time.Since(start)
	observability.IngestRunDuration.Observe(report.Duration.Seconds())

	in.logger.Info().
		Int("sources", report.Sources).
		Int("parsed", report.Parsed).
		Int("vectorized", report.Vectorized).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration).
		Msg("ingestion finished")

	return report, nil
}

func (in *Ingester) ingestSource(ctx context.Context, src domain.Source) Report {
	var part Report

	logger := in.logger.With().Str(logKeySource, src.URL).Str("type", src.Type).Logger()

	fetcher, ok := in.fetchers[src.Type]
	if !ok {
		part.addError("%s: %v", src.URL, ErrNoFetcher)
		return part
	}

	materials, err := in.fetchWithRetry(ctx, fetcher, src, &logger)
	if err != nil {
		observability.IngestSourceErrors.WithLabelValues(src.Type).Inc()
		part.addError("%s: %v", src.URL, err)

		return part
	}

	part.Parsed = len(materials)

	fresh := make([]domain.Material, 0, len(materials))

	for _, m := range materials {
		if m.Category == "" {
			m.Category = src.Category
		}

		exists, err := in.repo.MaterialExists(ctx, m.URL)
		if err != nil {
			part.addError("%s: %v", m.URL, err)
			continue
		}

		if exists {
			part.Skipped++
			observability.IngestMaterials.WithLabelValues(src.Type, resultDuplicate).Inc()

			continue
		}

		fresh = append(fresh, m)
	}

	for start := 0; start < len(fresh); start += in.opts.BatchSize {
		end := min(start+in.opts.BatchSize, len(fresh))
		in.storeBatch(ctx, src, fresh[start:end], &part, &logger)
	}

	logger.Debug().Int("parsed", part.Parsed).Int("stored", part.Vectorized).Int("skipped", part.Skipped).Msg("source ingested")

	return part
}

func (in *Ingester) storeBatch(ctx context.Context, src domain.Source, batch []domain.Material, part *Report, logger *zerolog.Logger) {
	texts := make([]string, len(batch))
	for i, m := range batch {
		texts[i] = m.Text
	}

	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Error().Err(err).Int("batch", len(batch)).Msg("embedding failed")
		part.addError("%s: embed %d materials: %v", src.URL, len(batch), err)
		observability.IngestMaterials.WithLabelValues(src.Type, resultFailed).Add(float64(len(batch)))

		return
	}

	for i, m := range batch {
		if _, err := in.repo.SaveMaterial(ctx, m, vectors[i]); err != nil {
			if errors.Is(err, db.ErrDuplicateMaterial) {
				part.Skipped++
				observability.IngestMaterials.WithLabelValues(src.Type, resultDuplicate).Inc()

				continue
			}

			part.addError("%s: %v", m.URL, err)
			observability.IngestMaterials.WithLabelValues(src.Type, resultFailed).Inc()

			continue
		}

		part.Vectorized++
		observability.IngestMaterials.WithLabelValues(src.Type, resultStored).Inc()
	}
}

func (in *Ingester) fetchWithRetry(ctx context.Context, f Fetcher, src domain.Source, logger *zerolog.Logger) ([]domain.Material, error) {
	var lastErr error

	for attempt := 1; attempt <= in.opts.Retries; attempt++ {
		materials, err := f.Fetch(ctx, src)
		if err == nil {
			return materials, nil
		}

		lastErr = err

		if attempt == in.opts.Retries {
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", in.opts.RetryDelay).Msg("fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s: %w", src.URL, ctx.Err())
		case <-time.After(in.opts.RetryDelay):
		}
	}

	return nil, fmt.Errorf("fetch after %d attempts: %w", in.opts.Retries, lastErr)
}
