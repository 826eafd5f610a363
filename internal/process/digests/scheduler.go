package digests

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/output/delivery"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
	"github.com/lueurxax/trend-digest-bot/internal/platform/schedule"
	"github.com/lueurxax/trend-digest-bot/internal/platform/worker"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
)

const (
	taskDaily   = "daily_digest"
	taskWeekly  = "weekly_digest"
	taskCleanup = "digest_cleanup"

	daysPerWeek = 7

	kindDaily    = "daily"
	kindWeekly   = "weekly"
	statusSent   = "sent"
	statusFailed = "failed"

	lockDaily   int64 = 7101
	lockWeekly  int64 = 7102
	lockCleanup int64 = 7103
)

// ErrNothingDelivered is returned when every recipient failed, so the
// scheduler retries the slot; partial failures are only logged.
var ErrNothingDelivered = errors.New("digest not delivered to any subscriber")

// Subscriptions lists who receives scheduled digests.
type Subscriptions interface {
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

// Locker runs fn under a cross-process lock, reporting false when another
// process holds it.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error)
}

// Notifier sends rendered messages to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, kind string, parts []string) error
}

// Config controls when scheduled digests go out.
type Config struct {
	DailyAt    schedule.Clock
	WeeklyDay  time.Weekday
	WeeklyHour int
	Location   *time.Location
	Tick       time.Duration
	Retention  time.Duration
}

// Scheduler sends the daily and weekly digests to subscribers.
type Scheduler struct {
	digests  Runner
	subs     Subscriptions
	notifier Notifier
	purger   *Service
	locker   Locker
	cfg      Config
	now      func() time.Time
	logger   *zerolog.Logger
}

// NewScheduler wires the scheduler. digests is usually a *Service.
func NewScheduler(digests Runner, subs Subscriptions, notifier Notifier, cfg Config, logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}

	s := &Scheduler{
		digests:  digests,
		subs:     subs,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}

	if svc, ok := digests.(*Service); ok {
		s.purger = svc
	}

	return s
}

// WithLocker makes every scheduled task run under a database lock so that
// only one scheduler replica sends each digest.
func (s *Scheduler) WithLocker(l Locker) *Scheduler {
	s.locker = l

	return s
}

// Run checks the schedule every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	tasks := s.tasks()

	s.logger.Info().
		Str("daily_at", s.cfg.DailyAt.String()).
		Str("weekly_day", s.cfg.WeeklyDay.String()).
		Int("weekly_hour", s.cfg.WeeklyHour).
		Str("timezone", s.cfg.Location.String()).
		Msg("digest scheduler started")

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:       "digest-scheduler",
		Interval:   s.cfg.Tick,
		RunOnStart: true,
		OnTick:     tasks.CheckAndRun,
		Logger:     s.logger,
	})
}

func (s *Scheduler) tasks() *worker.Scheduler {
	sched := worker.NewScheduler(s.cfg.Location, s.logger)
	sched.SetClock(s.now)

	sched.AddTask(&worker.Task{
		Name: taskDaily,
		Due:  worker.Daily(s.cfg.DailyAt.Hour, s.cfg.DailyAt.Minute, worker.DefaultDailyWindow),
		Run: s.locked(lockDaily, func(ctx context.Context, _ *zerolog.Logger) error {
			return s.SendDaily(ctx, s.today())
		}),
	})

	sched.AddTask(&worker.Task{
		Name: taskWeekly,
		Due:  worker.Weekly(s.cfg.WeeklyDay, s.cfg.WeeklyHour, 0),
		Run: s.locked(lockWeekly, func(ctx context.Context, _ *zerolog.Logger) error {
			return s.SendWeekly(ctx, s.today().AddDate(0, 0, -daysPerWeek))
		}),
	})

	if s.purger != nil && s.cfg.Retention > 0 {
		sched.AddTask(&worker.Task{
			Name: taskCleanup,
			Due:  worker.Daily(0, 0, worker.DefaultDailyWindow),
			Run: s.locked(lockCleanup, func(ctx context.Context, logger *zerolog.Logger) error {
				n, err := s.purger.Purge(ctx, s.cfg.Retention)
				if err != nil {
					return err
				}

				logger.Info().Int64("deleted", n).Msg("old digests purged")

				return nil
			}),
		})
	}

	return sched
}

type taskFunc = func(ctx context.Context, logger *zerolog.Logger) error

// locked wraps run so it executes only while holding lockID.
func (s *Scheduler) locked(lockID int64, run taskFunc) taskFunc {
	return func(ctx context.Context, logger *zerolog.Logger) error {
		if s.locker == nil {
			return run(ctx, logger)
		}

		acquired, err := s.locker.WithAdvisoryLock(ctx, lockID, func(ctx context.Context) error {
			return run(ctx, logger)
		})
		if err != nil {
			if acquired {
				return err
			}

			return fmt.Errorf("scheduled task lock %d: %w", lockID, err)
		}

		if !acquired {
			logger.Info().Int64("lock_id", lockID).Msg("task is running elsewhere, skipping")
		}

		return nil
	}
}

func (s *Scheduler) today() time.Time {
	return schedule.Today(s.now(), s.cfg.Location)
}

// deliveryTally counts per-recipient outcomes of one scheduled send.
type deliveryTally struct {
	kind      string
	delivered int
	failed    int
	lastErr   error
}

func (t *deliveryTally) record(err error) {
	if err != nil {
		t.failed++
		t.lastErr = err
		observability.ScheduledDigests.WithLabelValues(t.kind, statusFailed).Inc()

		return
	}

	t.delivered++
	observability.ScheduledDigests.WithLabelValues(t.kind, statusSent).Inc()
}

// result fails the run only when nobody got the digest: a retry then cannot
// send anyone a duplicate.
func (t *deliveryTally) result() error {
	if t.delivered == 0 && t.failed > 0 {
		return fmt.Errorf("%w: %d failed, last: %w", ErrNothingDelivered, t.failed, t.lastErr)
	}

	return nil
}

// SendDaily sends each subscriber one message combining the daily digests
// of their categories for date. A failed recipient is logged and skipped.
func (s *Scheduler) SendDaily(ctx context.Context, date time.Time) error {
	subs, err := s.subs.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	day := date.Format(dateLayout)
	results := make(map[string]domain.AnalysisResult)
	tally := &deliveryTally{kind: kindDaily}

	for _, sub := range subs {
		if len(sub.Categories) == 0 {
			continue
		}

		sections := make([]delivery.CategoryResult, 0, len(sub.Categories))

		for _, category := range sortedCopy(sub.Categories) {
			result, ok := results[category]
			if !ok {
				result = s.digests.Run(ctx, analysis.Request{Mode: domain.DailyDigest, Category: category, Date: date})
				results[category] = result
			}

			sections = append(sections, delivery.CategoryResult{Category: category, Result: result})
		}

		err := s.notifier.Send(ctx, sub.UserID, delivery.KindDigest, delivery.SubscriberDigest(day, sections))
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", sub.UserID).Msg("failed to send daily digest")
		}

		tally.record(err)
	}

	s.logger.Info().
		Str("date", day).
		Int("categories", len(results)).
		Int("delivered", tally.delivered).
		Int("failed", tally.failed).
		Msg("daily digests sent")

	return tally.result()
}

// SendWeekly runs the weekly digest starting at start for every subscribed
// category and sends it to that category's subscribers.
func (s *Scheduler) SendWeekly(ctx context.Context, start time.Time) error {
	subs, err := s.subs.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	byCategory := make(map[string][]int64)

	for _, sub := range subs {
		for _, category := range sub.Categories {
			byCategory[category] = append(byCategory[category], sub.UserID)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}

	sort.Strings(categories)

	tally := &deliveryTally{kind: kindWeekly}

	for _, category := range categories {
		result := s.digests.Run(ctx, analysis.Request{Mode: domain.WeeklyDigest, Category: category, Date: start})
		parts := delivery.ResultMessages(result)

		for _, userID := range byCategory[category] {
			err := s.notifier.Send(ctx, userID, delivery.KindDigest, parts)
			if err != nil {
				s.logger.Warn().Err(err).Int64("user_id", userID).Str("category", category).Msg("failed to send weekly digest")
			}

			tally.record(err)
		}
	}

	s.logger.Info().
		Str("start", start.Format(dateLayout)).
		Int("categories", len(categories)).
		Int("delivered", tally.delivered).
		Int("failed", tally.failed).
		Msg("weekly digests sent")

	return tally.result()
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)

	return out
}
