package schedule

import "time"

const day = 24 * time.Hour

// civil strips t to its calendar date in t's own location, re-anchored in UTC
// so that date arithmetic never sees a DST transition.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b, both read in b's location.
// Two instants on the same local date are 0 days apart regardless of time of day.
func DaysBetween(a, b time.Time) int {
	return int(civil(b).Sub(civil(a.In(b.Location()))) / day)
}

// SameDay reports whether a and b fall on the same calendar date in b's location.
func SameDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 0
}

// AddMonthsClamped advances a civil date by n months, clamping the day to the
// length of the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonthsClamped(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, date.Location())
	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, date.Location()).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, date.Location())
}

// dueDate is the first civil date on which a dose taken at last is no longer
// covered by freq.
func dueDate(freq Frequency, last time.Time) time.Time {
	start := civil(last)
	switch freq.Kind {
	case Monthly:
		return AddMonthsClamped(start, 1)
	case Daily, Weekly, EveryNDays, EveryNWeeks:
		return start.AddDate(0, 0, freq.IntervalDays())
	case PRN:
		return start
	}
	return start
}

// IntervalElapsed reports whether a full dosing interval has passed since
// lastTaken, ignoring the time of day. A dose in the future never elapses.
func IntervalElapsed(freq Frequency, lastTaken *time.Time, now time.Time) bool {
	if lastTaken == nil {
		return true
	}
	last := lastTaken.In(now.Location())
	if last.After(now) {
		return false
	}
	switch freq.Kind {
	case PRN:
		return true
	case Monthly:
		return !civil(now).Before(dueDate(freq, last))
	case Daily, Weekly, EveryNDays, EveryNWeeks:
		return DaysBetween(last, now) >= freq.IntervalDays()
	}
	return false
}

// IsDue decides whether a scheduled dose is due at now. PRN medications are
// never due. The scheduled time must have been reached on the current day and
// the dosing interval since lastTaken must have elapsed.
func IsDue(freq Frequency, at *TimeOfDay, lastTaken *time.Time, now time.Time) bool {
	if freq.IsPRN() || at == nil {
		return false
	}
	if lastTaken != nil && lastTaken.After(now) {
		return false
	}
	if !at.Reached(now) {
		return false
	}
	return IntervalElapsed(freq, lastTaken, now)
}

// NextDue returns the instant a scheduled medication next becomes due, or
// the current day's scheduled instant when it is already due. ok is false for
// PRN medications.
func NextDue(freq Frequency, at *TimeOfDay, lastTaken *time.Time, now time.Time) (next time.Time, ok bool) {
	if freq.IsPRN() || at == nil {
		return time.Time{}, false
	}
	date := civil(now)
	if lastTaken != nil {
		if d := dueDate(freq, lastTaken.In(now.Location())); d.After(date) {
			date = d
		}
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, at.Hour, at.Minute, 0, 0, now.Location()), true
}

// ExpectedDoses counts the interval boundaries of freq that fall within
// [start, end]: start + k*interval for k >= 1, compared by calendar date.
func ExpectedDoses(freq Frequency, start, end time.Time) int {
	if freq.IsPRN() || end.Before(start) {
		return 0
	}
	from := civil(start.In(end.Location()))
	to := civil(end)
	switch freq.Kind {
	case Monthly:
		n := 0
		for !AddMonthsClamped(from, n+1).After(to) {
			n++
		}
		return n
	case Daily, Weekly, EveryNDays, EveryNWeeks:
		k := freq.IntervalDays()
		if k <= 0 {
			return 0
		}
		return int(to.Sub(from)/day) / k
	case PRN:
		return 0
	}
	return 0
}
