package domain

import "math"

// AnalysisMode selects the prompt set and budget of an analysis run.
type AnalysisMode int

const (
	TrendQuery AnalysisMode = iota
	DailyDigest
	WeeklyDigest
)

func (m AnalysisMode) String() string {
	switch m {
	case TrendQuery:
		return "trend_query"
	case DailyDigest:
		return "single_day"
	case WeeklyDigest:
		return "weekly"
	default:
		return "unknown"
	}
}

// IsDigest reports whether the mode is a periodic digest.
func (m AnalysisMode) IsDigest() bool {
	return m == DailyDigest || m == WeeklyDigest
}

// TokenBudget is the usable part of a model context window.
type TokenBudget struct {
	MaxContextSize   int
	ReservedFraction float64
	// SafetyMargin inflates the average material size when sizing chunks.
	// Values below 1 are treated as 1.
	SafetyMargin float64
}

// Available returns floor(MaxContextSize * (1 - ReservedFraction)).
func (b TokenBudget) Available() int {
	if b.MaxContextSize <= 0 {
		return 0
	}

	reserved := b.ReservedFraction
	if reserved < 0 {
		reserved = 0
	}

	if reserved > 1 {
		reserved = 1
	}

	return int(math.Floor(float64(b.MaxContextSize) * (1 - reserved)))
}

// Margin returns the effective safety margin.
func (b TokenBudget) Margin() float64 {
	if b.SafetyMargin < 1 {
		return 1
	}

	return b.SafetyMargin
}
