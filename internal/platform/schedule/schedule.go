// Package schedule parses the human-facing schedule settings
// (DAILY_DIGEST_TIME, DIGEST_TIMEZONE).
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	// Embed tzdata for environments without zoneinfo.
	_ "time/tzdata"
)

const (
	minutesPerHour = 60
	maxHour        = 23
)

// Static errors for schedule validation.
var (
	ErrTimeFormat     = errors.New("time must be HH:MM")
	ErrInvalidHour    = errors.New("invalid hour")
	ErrInvalidMinute  = errors.New("invalid minute")
	ErrHourOutOfRange = errors.New("hour out of range")
)

var timezoneAliases = map[string]string{
	"Asia/Nicosia": "Europe/Nicosia",
	"MSK":          "Europe/Moscow",
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock accepts H:MM or HH:MM.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)

	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return Clock{}, ErrTimeFormat
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, ErrInvalidHour
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, ErrInvalidMinute
	}

	if hour > maxHour || hour < 0 {
		return Clock{}, ErrHourOutOfRange
	}

	if minute < 0 || minute >= minutesPerHour {
		return Clock{}, ErrInvalidMinute
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// NormalizeTimezone maps known aliases to canonical IANA names.
func NormalizeTimezone(value string) string {
	value = strings.TrimSpace(value)

	if canonical, ok := timezoneAliases[value]; ok {
		return canonical
	}

	return value
}

// Location resolves a timezone name, defaulting to UTC when empty.
func Location(name string) (*time.Location, error) {
	name = NormalizeTimezone(name)
	if name == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	return loc, nil
}

// Today returns midnight of t's calendar day in loc.
func Today(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
