package medication

import (
	"time"

	"github.com/stellarlinkco/pharm/internal/schedule"
)

// Adherence summarises doses taken against doses expected over a window.
type Adherence struct {
	Start    time.Time
	End      time.Time
	AsNeeded bool // PRN: no expectation, Ratio is meaningless
	Expected int
	Actual   int
	Ratio    float64 // in [0, 1]
}

// Percent returns Ratio as a percentage.
func (a Adherence) Percent() float64 { return a.Ratio * 100 }

// Adherence computes adherence over [start, end]. A window without any
// expected dose reports full adherence.
func (m *Medication) Adherence(start, end time.Time) Adherence {
	a := Adherence{Start: start, End: end}
	for _, ev := range m.History {
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		a.Actual++
	}
	if m.IsPRN() {
		a.AsNeeded = true
		return a
	}

	a.Expected = schedule.ExpectedDoses(m.Frequency, start, end)
	if a.Expected == 0 {
		a.Ratio = 1
		return a
	}
	a.Ratio = float64(a.Actual) / float64(a.Expected)
	if a.Ratio > 1 {
		a.Ratio = 1
	}
	return a
}
