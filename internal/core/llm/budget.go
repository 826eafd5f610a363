package llm

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
)

// Fractions of the daily limit at which usage is reported.
const (
	budgetWarnAt  = 0.8
	budgetBlockAt = 1.0
)

// BudgetLevel is the highest threshold crossed today.
type BudgetLevel int

const (
	BudgetOK BudgetLevel = iota
	BudgetWarning
	BudgetExhausted
)

func (l BudgetLevel) String() string {
	switch l {
	case BudgetWarning:
		return "warning"
	case BudgetExhausted:
		return "exhausted"
	default:
		return "ok"
	}
}

// BudgetStatus is a snapshot of today's token usage.
type BudgetStatus struct {
	Day   string
	Used  int64
	Limit int64
	Level BudgetLevel
}

// Fraction is Used/Limit, or zero without a limit.
func (s BudgetStatus) Fraction() float64 {
	if s.Limit <= 0 {
		return 0
	}

	return float64(s.Used) / float64(s.Limit)
}

// BudgetTracker counts completion tokens per calendar day and blocks calls
// once the daily limit is spent. A zero limit only counts.
type BudgetTracker struct {
	mu     sync.Mutex
	status BudgetStatus
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

func NewBudgetTracker(dailyLimit int64, loc *time.Location, logger *zerolog.Logger) *BudgetTracker {
	if loc == nil {
		loc = time.UTC
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	bt := &BudgetTracker{loc: loc, now: time.Now, logger: logger}
	bt.status = BudgetStatus{Day: bt.day(), Limit: dailyLimit}

	return bt
}

func (bt *BudgetTracker) SetDailyLimit(limit int64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.status.Limit = limit
	bt.status.Level = bt.levelFor(bt.status.Used)
}

// Exceeded reports whether today's usage reached the limit.
func (bt *BudgetTracker) Exceeded() bool {
	return bt.Status().Level == BudgetExhausted
}

// RecordTokens adds tokens to today's count, logging each threshold once.
func (bt *BudgetTracker) RecordTokens(tokens int) {
	if tokens <= 0 {
		return
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.rollover()

	bt.status.Used += int64(tokens)
	observability.LLMBudgetTokens.Set(float64(bt.status.Used))

	level := bt.levelFor(bt.status.Used)
	if level <= bt.status.Level {
		return
	}

	bt.status.Level = level
	observability.LLMBudgetAlerts.WithLabelValues(level.String()).Inc()

	bt.logger.Warn().
		Str("level", level.String()).
		Int64("used", bt.status.Used).
		Int64("limit", bt.status.Limit).
		Float64("fraction", bt.status.Fraction()).
		Msg("daily LLM token budget threshold crossed")
}

// Status returns today's usage.
func (bt *BudgetTracker) Status() BudgetStatus {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.rollover()

	return bt.status
}

func (bt *BudgetTracker) levelFor(used int64) BudgetLevel {
	if bt.status.Limit <= 0 {
		return BudgetOK
	}

	fraction := float64(used) / float64(bt.status.Limit)

	switch {
	case fraction >= budgetBlockAt:
		return BudgetExhausted
	case fraction >= budgetWarnAt:
		return BudgetWarning
	default:
		return BudgetOK
	}
}

func (bt *BudgetTracker) day() string {
	return bt.now().In(bt.loc).Format(time.DateOnly)
}

// rollover starts a new day; bt.mu must be held.
func (bt *BudgetTracker) rollover() {
	today := bt.day()
	if bt.status.Day == today {
		return
	}

	bt.logger.Info().Str("day", today).Int64("yesterday_used", bt.status.Used).Msg("LLM token budget reset")

	bt.status = BudgetStatus{Day: today, Limit: bt.status.Limit}
	observability.LLMBudgetTokens.Set(0)
}
