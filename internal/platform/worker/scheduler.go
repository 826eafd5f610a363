package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// HoursPerDay is used for schedule calculations.
	HoursPerDay = 24
	// defaultWeeklyGracePeriod prevents a second run in the same week.
	defaultWeeklyGracePeriod = 6 * HoursPerDay * time.Hour
	// DefaultDailyWindow is how long after the slot a missed daily task still fires.
	DefaultDailyWindow = time.Hour
)

var errTaskPanicked = errors.New("task panicked")

// DueFunc reports whether a task should run at now given its last successful run.
type DueFunc func(now, lastRun time.Time) bool

// Task is a job the Scheduler runs whenever Due says so.
type Task struct {
	// Name identifies the task in logs.
	Name string

	Due DueFunc

	// Run executes the task. lastRun advances only when it returns nil.
	Run func(ctx context.Context, logger *zerolog.Logger) error

	// OnError is called when Run returns an error. If nil, errors are only logged.
	OnError func(err error)

	lastRun time.Time
}

// Scheduler checks a set of tasks on each call to CheckAndRun.
// Time is evaluated in the scheduler's location.
type Scheduler struct {
	mu     sync.Mutex
	tasks  []*Task
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

// NewScheduler creates a scheduler evaluating schedules in loc (UTC when nil).
func NewScheduler(loc *time.Location, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		loc:    loc,
		now:    time.Now,
		logger: getLogger(logger),
	}
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

// AddTask registers a task.
func (s *Scheduler) AddTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)
}

// CheckAndRun runs every due task sequentially.
// Call this from the scheduler loop.
func (s *Scheduler) CheckAndRun(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]*Task(nil), s.tasks...)
	now := s.now().In(s.loc)
	s.mu.Unlock()

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}

		s.checkAndRunTask(ctx, task, now)
	}
}

func (s *Scheduler) checkAndRunTask(ctx context.Context, task *Task, now time.Time) {
	s.mu.Lock()
	lastRun := task.lastRun
	s.mu.Unlock()

	if task.Due == nil || !task.Due(now, lastRun) {
		return
	}

	logger := s.logger.With().Str(logFieldTask, task.Name).Logger()
	logger.Info().Time("scheduled_at", now).Msg("starting scheduled task")

	if err := s.run(ctx, task, &logger); err != nil {
		logger.Error().Err(err).Msg("scheduled task failed")

		if task.OnError != nil {
			task.OnError(err)
		}

		return
	}

	s.mu.Lock()
	task.lastRun = now
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, task *Task, logger *zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic")

			err = errTaskPanicked
		}
	}()

	return task.Run(ctx, logger)
}

// Daily is due once per day in [hour:minute, hour:minute+window).
func Daily(hour, minute int, window time.Duration) DueFunc {
	if window <= 0 {
		window = DefaultDailyWindow
	}

	return func(now, lastRun time.Time) bool {
		return ShouldRunDaily(now, hour, minute, window, lastRun)
	}
}

// Weekly is due during the given weekday hour, at most once per grace period.
func Weekly(day time.Weekday, hour int, gracePeriod time.Duration) DueFunc {
	return func(now, lastRun time.Time) bool {
		return ShouldRunWeekly(now, day, hour, lastRun, gracePeriod)
	}
}

// ShouldRunDaily reports whether a daily slot at hour:minute is due.
func ShouldRunDaily(now time.Time, hour, minute int, window time.Duration, lastRun time.Time) bool {
	slot := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	if now.Before(slot) || now.Sub(slot) >= window {
		return false
	}

	return lastRun.IsZero() || lastRun.Before(slot)
}

// ShouldRunWeekly reports whether a weekly task is due.
func ShouldRunWeekly(
	now time.Time,
	day time.Weekday,
	hour int,
	lastRun time.Time,
	gracePeriod time.Duration,
) bool {
	if now.Weekday() != day {
		return false
	}

	if now.Hour() != hour {
		return false
	}

	if gracePeriod == 0 {
		gracePeriod = defaultWeeklyGracePeriod
	}

	if !lastRun.IsZero() && now.Sub(lastRun) <= gracePeriod {
		return false
	}

	return true
}
