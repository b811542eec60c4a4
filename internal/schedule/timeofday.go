package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
)

// ErrInvalidTime is returned for time-of-day strings outside the grammar.
var ErrInvalidTime = fmt.Errorf("invalid time: %w", apperr.ErrValidation)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var namedTimes = map[string]TimeOfDay{
	"morning":     {8, 0},
	"breakfast":   {8, 0},
	"midmorning":  {10, 0},
	"mid-morning": {10, 0},
	"noon":        {12, 0},
	"midday":      {12, 0},
	"lunch":       {12, 0},
	"afternoon":   {14, 0},
	"evening":     {18, 0},
	"dinner":      {18, 0},
	"bedtime":     {21, 0},
	"night":       {21, 0},
	"midnight":    {0, 0},
}

// ParseTime accepts "HH:MM", "H:M", "HH" or a named time such as "morning".
func ParseTime(s string) (TimeOfDay, error) {
	trimmed := strings.TrimSpace(s)
	if t, ok := namedTimes[strings.ToLower(trimmed)]; ok {
		return t, nil
	}

	hourPart, minutePart, hasColon := strings.Cut(trimmed, ":")
	if hasColon && strings.Contains(minutePart, ":") {
		return TimeOfDay{}, fmt.Errorf("%w %q: expected HH:MM", ErrInvalidTime, s)
	}

	hour, err := parseClockField(hourPart, 23)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w %q: %v", ErrInvalidTime, s, err)
	}
	minute := 0
	if hasColon {
		minute, err = parseClockField(minutePart, 59)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w %q: %v", ErrInvalidTime, s, err)
		}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseClockField(s string, max int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing number")
	}
	n, err := strconv.Atoi(s)
	if err != nil || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n > max {
		return 0, fmt.Errorf("%d out of range [0,%d]", n, max)
	}
	return n, nil
}

// MustParseTime is ParseTime for constants and tests.
func MustParseTime(s string) TimeOfDay {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant t falls on during the civil day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// Reached reports whether the wall clock of now is at or past t.
func (t TimeOfDay) Reached(now time.Time) bool {
	h, m, _ := now.Clock()
	return h > t.Hour || (h == t.Hour && m >= t.Minute)
}
