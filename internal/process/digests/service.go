// Package digests serves daily and weekly digests through a two-level cache
// and sends them to subscribers on schedule.
package digests

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

const (
	layerMemory = "memory"
	layerStore  = "store"
	resultHit   = "hit"
	resultMiss  = "miss"

	dateLayout = "2006-01-02"
)

// Runner executes one analysis request.
type Runner interface {
	Run(ctx context.Context, req analysis.Request) domain.AnalysisResult
}

// Store persists generated digests.
type Store interface {
	GetDigest(ctx context.Context, key db.DigestKey) (domain.Success, error)
	SaveDigest(ctx context.Context, s domain.Success) error
	DeleteDigestsBefore(ctx context.Context, t time.Time) (int64, error)
}

var _ Store = (*db.DB)(nil)

// Service answers analysis requests, serving digests from cache when possible.
// Trend queries always run the pipeline.
type Service struct {
	runner Runner
	store  Store
	cache  *lru.LRU[db.DigestKey, domain.Success]
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

// NewService builds the cached service. A nil store disables the persistent layer.
func NewService(runner Runner, store Store, size int, ttl time.Duration, loc *time.Location, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if loc == nil {
		loc = time.UTC
	}

	if size <= 0 {
		size = 1
	}

	return &Service{
		runner: runner,
		store:  store,
		cache:  lru.NewLRU[db.DigestKey, domain.Success](size, nil, ttl),
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// KeyFor returns the cache key of a digest request.
func KeyFor(req analysis.Request) db.DigestKey {
	start, end := req.Period()

	period := start
	if end != start {
		period = start + " - " + end
	}

	return db.DigestKey{Mode: req.Mode, Category: req.Category, Period: period}
}

// Run returns the digest for req, generating it on a cache miss.
func (s *Service) Run(ctx context.Context, req analysis.Request) domain.AnalysisResult {
	if !req.Mode.IsDigest() {
		return s.runner.Run(ctx, req)
	}

	key := KeyFor(req)
	logger := s.logger.With().Str("mode", key.Mode.String()).Str("category", key.Category).Str("period", key.Period).Logger()

	if cached, ok := s.cache.Get(key); ok {
		observability.DigestCacheLookups.WithLabelValues(layerMemory, resultHit).Inc()
		logger.Debug().Msg("digest served from memory")

		return domain.NewSuccess(cached)
	}

	observability.DigestCacheLookups.WithLabelValues(layerMemory, resultMiss).Inc()

	if stored, ok := s.fromStore(ctx, key, &logger); ok {
		s.cache.Add(key, stored)

		return domain.NewSuccess(stored)
	}

	result := s.runner.Run(ctx, req)

	success, ok := result.AsSuccess()
	if !ok {
		return result
	}

	s.cache.Add(key, success)
	s.persist(ctx, req, success, &logger)

	return result
}

func (s *Service) fromStore(ctx context.Context, key db.DigestKey, logger *zerolog.Logger) (domain.Success, bool) {
	if s.store == nil {
		return domain.Success{}, false
	}

	stored, err := s.store.GetDigest(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrDigestNotFound) {
			logger.Warn().Err(err).Msg("failed to read stored digest")
		}

		observability.DigestCacheLookups.WithLabelValues(layerStore, resultMiss).Inc()

		return domain.Success{}, false
	}

	observability.DigestCacheLookups.WithLabelValues(layerStore, resultHit).Inc()
	logger.Debug().Msg("digest served from store")

	return stored, true
}

// persist stores only digests whose period has ended; today's materials may still grow.
func (s *Service) persist(ctx context.Context, req analysis.Request, success domain.Success, logger *zerolog.Logger) {
	if s.store == nil {
		return
	}

	_, end := req.Period()
	today := s.now().In(s.loc).Format(dateLayout)

	if end >= today {
		return
	}

	if err := s.store.SaveDigest(ctx, success); err != nil {
		logger.Warn().Err(err).Msg("failed to store digest")
	}
}

// Purge drops stored digests older than retention and returns how many.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s.store == nil || retention <= 0 {
		return 0, nil
	}

	return s.store.DeleteDigestsBefore(ctx, s.now().Add(-retention))
}
