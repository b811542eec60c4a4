package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stellarlinkco/pharm/internal/apperr"
)

// ErrInvalidFrequency is returned for frequency strings outside the grammar.
var ErrInvalidFrequency = fmt.Errorf("invalid frequency: %w", apperr.ErrValidation)

// Kind tags a Frequency. Switches over Kind must stay exhaustive.
type Kind int

const (
	Daily Kind = iota + 1
	Weekly
	Monthly
	EveryNDays
	EveryNWeeks
	PRN
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case EveryNDays:
		return "every-n-days"
	case EveryNWeeks:
		return "every-n-weeks"
	case PRN:
		return "prn"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Frequency is how often a medication is taken. N is only meaningful for
// EveryNDays and EveryNWeeks and is at least 1 there.
type Frequency struct {
	Kind Kind
	N    int
}

// Convenience constructors.
func DailyFrequency() Frequency   { return Frequency{Kind: Daily} }
func WeeklyFrequency() Frequency  { return Frequency{Kind: Weekly} }
func MonthlyFrequency() Frequency { return Frequency{Kind: Monthly} }
func AsNeeded() Frequency         { return Frequency{Kind: PRN} }
func EveryDays(n int) Frequency   { return Frequency{Kind: EveryNDays, N: n} }
func EveryWeeks(n int) Frequency  { return Frequency{Kind: EveryNWeeks, N: n} }

func (f Frequency) IsPRN() bool            { return f.Kind == PRN }
func (f Frequency) IsZero() bool           { return f.Kind == 0 }
func (f Frequency) Equal(o Frequency) bool { return f.Kind == o.Kind && f.N == o.N }

var prnWords = map[string]bool{
	"prn":         true,
	"as needed":   true,
	"as-needed":   true,
	"asneeded":    true,
	"when needed": true,
}

var multiplicityWords = map[string]bool{
	"once":   true,
	"twice":  true,
	"thrice": true,
}

// countWords are the spelled-out counts accepted before "times daily".
var countWords = map[string]bool{
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
}

func isCount(s string) bool {
	if countWords[s] {
		return true
	}
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

// ParseFrequency parses a free-form frequency such as "daily", "every 3 days",
// "twice daily" or "as needed".
func ParseFrequency(s string) (Frequency, error) {
	fields := strings.Fields(strings.ToLower(s))
	norm := strings.Join(fields, " ")

	if prnWords[norm] {
		return AsNeeded(), nil
	}
	switch norm {
	case "daily", "every day":
		return DailyFrequency(), nil
	case "weekly", "every week":
		return WeeklyFrequency(), nil
	case "monthly", "every month":
		return MonthlyFrequency(), nil
	}

	if len(fields) == 3 && fields[0] == "every" {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Frequency{}, fmt.Errorf("%w %q", ErrInvalidFrequency, s)
		}
		if n <= 0 {
			return Frequency{}, fmt.Errorf("%w %q: interval must be at least 1", ErrInvalidFrequency, s)
		}
		switch fields[2] {
		case "day", "days":
			return EveryDays(n), nil
		case "week", "weeks":
			return EveryWeeks(n), nil
		}
		return Frequency{}, fmt.Errorf("%w %q", ErrInvalidFrequency, s)
	}

	if isMultipleDaily(fields) {
		return DailyFrequency(), nil
	}
	return Frequency{}, fmt.Errorf("%w %q", ErrInvalidFrequency, s)
}

// isMultipleDaily matches "twice daily", "3 times daily", "three times a day".
// Same-day doses collapse into a single daily decision.
func isMultipleDaily(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	rest := fields[1:]
	if multiplicityWords[fields[0]] {
		return len(rest) == 1 && rest[0] == "daily" || len(rest) == 2 && rest[0] == "a" && rest[1] == "day"
	}
	if !isCount(fields[0]) {
		return false
	}
	if len(rest) < 2 || (rest[0] != "times" && rest[0] != "time") {
		return false
	}
	rest = rest[1:]
	return len(rest) == 1 && rest[0] == "daily" || len(rest) == 2 && rest[0] == "a" && rest[1] == "day"
}

// MustParseFrequency is ParseFrequency for constants and tests.
func MustParseFrequency(s string) Frequency {
	f, err := ParseFrequency(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String renders the canonical form; ParseFrequency(f.String()) == f.
func (f Frequency) String() string {
	switch f.Kind {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case EveryNDays:
		if f.N == 1 {
			return "every 1 day"
		}
		return fmt.Sprintf("every %d days", f.N)
	case EveryNWeeks:
		if f.N == 1 {
			return "every 1 week"
		}
		return fmt.Sprintf("every %d weeks", f.N)
	case PRN:
		return "prn"
	}
	return ""
}

// IntervalDays is the dosing interval in calendar days. Monthly and PRN have
// no fixed day count and report 0.
func (f Frequency) IntervalDays() int {
	switch f.Kind {
	case Daily:
		return 1
	case Weekly:
		return 7
	case EveryNDays:
		return f.N
	case EveryNWeeks:
		return 7 * f.N
	case Monthly, PRN:
		return 0
	}
	return 0
}

// ParseSchedule validates a time/frequency pair. The time is ignored, and may
// be empty, when the frequency is PRN.
func ParseSchedule(timeStr, freqStr string) (*TimeOfDay, Frequency, error) {
	freq, err := ParseFrequency(freqStr)
	if err != nil {
		return nil, Frequency{}, err
	}
	if freq.IsPRN() {
		return nil, freq, nil
	}
	if strings.TrimSpace(timeStr) == "" {
		return nil, Frequency{}, fmt.Errorf("%w: a scheduled time is required for %s medications", ErrInvalidTime, freq)
	}
	at, err := ParseTime(timeStr)
	if err != nil {
		return nil, Frequency{}, err
	}
	return &at, freq, nil
}
