package digests

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/output/delivery"
	"github.com/lueurxax/trend-digest-bot/internal/platform/schedule"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
)

type staticSubs struct {
	subs []domain.Subscription
	err  error
}

func (s staticSubs) ListSubscriptions(context.Context) ([]domain.Subscription, error) {
	return s.subs, s.err
}

type sent struct {
	chatID int64
	kind   string
	parts  []string
}

type recordingNotifier struct {
	sent []sent
	fail map[int64]error
}

func (n *recordingNotifier) Send(_ context.Context, chatID int64, kind string, parts []string) error {
	if err := n.fail[chatID]; err != nil {
		return err
	}

	n.sent = append(n.sent, sent{chatID: chatID, kind: kind, parts: parts})

	return nil
}

func newTestScheduler(runner Runner, subs Subscriptions, notifier Notifier) *Scheduler {
	logger := zerolog.Nop()

	return NewScheduler(runner, subs, notifier, Config{
		DailyAt:    schedule.Clock{Hour: 9},
		WeeklyDay:  time.Monday,
		WeeklyHour: 10,
	}, &logger)
}

func TestSendDailyCombinesCategories(t *testing.T) {
	runner := &countingRunner{result: func(req analysis.Request) domain.AnalysisResult {
		if req.Category == "crypto" {
			return domain.NewError("Не найдено материалов за 2024-05-06")
		}

		return domain.NewSuccess(domain.Success{Mode: req.Mode, Category: req.Category, MaterialsCount: 2, Analysis: "итоги " + req.Category})
	}}

	subs := staticSubs{subs: []domain.Subscription{
		{UserID: 1, Categories: []string{"games", "crypto"}},
		{UserID: 2, Categories: []string{"games"}},
		{UserID: 3},
	}}
	notifier := &recordingNotifier{}

	s := newTestScheduler(runner, subs, notifier)
	require.NoError(t, s.SendDaily(context.Background(), day(2024, 5, 6)))

	// each category is analyzed once per run
	assert.Equal(t, 2, runner.count())

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, int64(1), notifier.sent[0].chatID)
	assert.Equal(t, delivery.KindDigest, notifier.sent[0].kind)

	first := strings.Join(notifier.sent[0].parts, "")
	assert.Contains(t, first, "📰 Ежедневный дайджест новостей за 2024-05-06")
	assert.Contains(t, first, "📌 Категория: crypto\n❌ Ошибка: Не найдено материалов за 2024-05-06")
	assert.Contains(t, first, "итоги games")
	assert.Less(t, strings.Index(first, "crypto"), strings.Index(first, "games"))
}

func TestSendDailySkipsFailedRecipient(t *testing.T) {
	notifier := &recordingNotifier{fail: map[int64]error{1: errors.New("blocked by user")}}
	subs := staticSubs{subs: []domain.Subscription{
		{UserID: 1, Categories: []string{"games"}},
		{UserID: 2, Categories: []string{"games"}},
	}}

	s := newTestScheduler(successRunner(), subs, notifier)
	require.NoError(t, s.SendDaily(context.Background(), day(2024, 5, 6)))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(2), notifier.sent[0].chatID)
}

func TestSendDailyFailsWhenNobodyReceived(t *testing.T) {
	notifier := &recordingNotifier{fail: map[int64]error{1: errors.New("network down")}}
	subs := staticSubs{subs: []domain.Subscription{{UserID: 1, Categories: []string{"games"}}}}

	s := newTestScheduler(successRunner(), subs, notifier)
	err := s.SendDaily(context.Background(), day(2024, 5, 6))

	require.ErrorIs(t, err, ErrNothingDelivered)
	assert.Contains(t, err.Error(), "network down")
}

func TestDailyTaskDeliversOnceDespiteFailedRecipient(t *testing.T) {
	runner := successRunner()
	notifier := &recordingNotifier{fail: map[int64]error{2: errors.New("blocked by user")}}
	subs := staticSubs{subs: []domain.Subscription{
		{UserID: 1, Categories: []string{"games"}},
		{UserID: 2, Categories: []string{"games"}},
	}}

	s := newTestScheduler(runner, subs, notifier)

	// Tuesday: no weekly slot, ticks span the whole daily window.
	now := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	tasks := s.tasks()
	for range 60 {
		tasks.CheckAndRun(context.Background())
		now = now.Add(time.Minute)
	}

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(1), notifier.sent[0].chatID)
	assert.Equal(t, 1, runner.count())
}

func TestDailyTaskRetriesWhenNothingDelivered(t *testing.T) {
	runner := successRunner()
	notifier := &recordingNotifier{fail: map[int64]error{1: errors.New("network down")}}
	subs := staticSubs{subs: []domain.Subscription{{UserID: 1, Categories: []string{"games"}}}}

	s := newTestScheduler(runner, subs, notifier)

	now := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	tasks := s.tasks()
	tasks.CheckAndRun(context.Background())

	now = now.Add(time.Minute)
	delete(notifier.fail, 1)
	tasks.CheckAndRun(context.Background())

	now = now.Add(time.Minute)
	tasks.CheckAndRun(context.Background())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 2, runner.count())
}

func TestSendDailyListFailure(t *testing.T) {
	s := newTestScheduler(successRunner(), staticSubs{err: errors.New("db down")}, &recordingNotifier{})

	require.Error(t, s.SendDaily(context.Background(), day(2024, 5, 6)))
}

func TestSendWeeklyPerCategory(t *testing.T) {
	runner := successRunner()
	subs := staticSubs{subs: []domain.Subscription{
		{UserID: 1, Categories: []string{"games", "ai"}},
		{UserID: 2, Categories: []string{"games"}},
	}}
	notifier := &recordingNotifier{}

	s := newTestScheduler(runner, subs, notifier)
	require.NoError(t, s.SendWeekly(context.Background(), day(2024, 4, 29)))

	require.Equal(t, 2, runner.count())
	assert.Equal(t, "ai", runner.calls[0].Category)
	assert.Equal(t, domain.WeeklyDigest, runner.calls[0].Mode)
	assert.Equal(t, day(2024, 4, 29), runner.calls[0].Date)

	require.Len(t, notifier.sent, 3)
	assert.Equal(t, int64(1), notifier.sent[0].chatID)
	assert.Contains(t, notifier.sent[0].parts[0], "✅ Анализ новостей за неделю завершен!")
}

func TestSchedulerTasksFireOnSchedule(t *testing.T) {
	runner := successRunner()
	subs := staticSubs{subs: []domain.Subscription{{UserID: 7, Categories: []string{"games"}}}}
	notifier := &recordingNotifier{}

	s := newTestScheduler(runner, subs, notifier)

	// Monday 2024-05-06 10:00: weekly slot, past the daily window.
	s.now = func() time.Time { return time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC) }

	s.tasks().CheckAndRun(context.Background())

	require.Equal(t, 1, runner.count())
	assert.Equal(t, domain.WeeklyDigest, runner.calls[0].Mode)
	assert.Equal(t, day(2024, 4, 29), runner.calls[0].Date)

	// Tuesday 09:15: daily slot only.
	s.now = func() time.Time { return time.Date(2024, 5, 7, 9, 15, 0, 0, time.UTC) }

	s.tasks().CheckAndRun(context.Background())

	require.Equal(t, 2, runner.count())
	assert.Equal(t, domain.DailyDigest, runner.calls[1].Mode)
	assert.Equal(t, day(2024, 5, 7), runner.calls[1].Date)
}

func TestSendWeeklySkipsFailedRecipient(t *testing.T) {
	notifier := &recordingNotifier{fail: map[int64]error{1: errors.New("blocked by user")}}
	subs := staticSubs{subs: []domain.Subscription{
		{UserID: 1, Categories: []string{"games"}},
		{UserID: 2, Categories: []string{"games"}},
	}}

	s := newTestScheduler(successRunner(), subs, notifier)
	require.NoError(t, s.SendWeekly(context.Background(), day(2024, 4, 29)))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(2), notifier.sent[0].chatID)
}

type fakeLocker struct {
	held map[int64]bool
	ids  []int64
}

func (l *fakeLocker) WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	l.ids = append(l.ids, lockID)
	if l.held[lockID] {
		return false, nil
	}

	return true, fn(ctx)
}

func TestSchedulerSkipsTaskHeldElsewhere(t *testing.T) {
	runner := successRunner()
	subs := staticSubs{subs: []domain.Subscription{{UserID: 7, Categories: []string{"games"}}}}
	locker := &fakeLocker{held: map[int64]bool{lockDaily: true}}

	s := newTestScheduler(runner, subs, &recordingNotifier{}).WithLocker(locker)
	s.now = func() time.Time { return time.Date(2024, 5, 7, 9, 15, 0, 0, time.UTC) }

	tasks := s.tasks()
	tasks.CheckAndRun(context.Background())

	assert.Equal(t, []int64{lockDaily}, locker.ids)
	assert.Zero(t, runner.count())

	// a skipped run counts as done for this replica
	tasks.CheckAndRun(context.Background())
	assert.Len(t, locker.ids, 1)
}
