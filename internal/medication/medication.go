// Package medication holds the medication record model, its dose history and
// the active/archived document the rest of the engine operates on.
package medication

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

// ErrNothingToUndo is returned by Untake on an empty history.
var ErrNothingToUndo = &apperr.Error{Kind: apperr.KindValidation, Msg: "no recorded dose to undo"}

// DoseEvent is one recorded dose. Dose is the label in effect when it was taken.
type DoseEvent struct {
	ID        string
	Timestamp time.Time
	Dose      string
}

// Medication is a tracked medication and its full dose history.
type Medication struct {
	Name          string
	Dose          string
	ScheduledTime *schedule.TimeOfDay // nil for PRN
	Frequency     schedule.Frequency
	Notes         string
	LastTaken     *time.Time
	History       []DoseEvent
	CreatedAt     time.Time
	ArchivedAt    *time.Time

	// Notified is session state owned by the daemon; it is never persisted.
	Notified bool
}

// IsPRN reports whether the medication is taken as needed.
func (m *Medication) IsPRN() bool { return m.Frequency.IsPRN() }

// IsDue evaluates the medication's schedule at now.
func (m *Medication) IsDue(now time.Time) bool {
	return schedule.IsDue(m.Frequency, m.ScheduledTime, m.LastTaken, now)
}

// NextDue returns when the medication next becomes due; ok is false for PRN.
func (m *Medication) NextDue(now time.Time) (time.Time, bool) {
	return schedule.NextDue(m.Frequency, m.ScheduledTime, m.LastTaken, now)
}

// Satisfied reports whether a scheduled medication already has a dose
// recorded for its current interval.
func (m *Medication) Satisfied(now time.Time) bool {
	if m.IsPRN() || m.LastTaken == nil {
		return false
	}
	return !schedule.IntervalElapsed(m.Frequency, m.LastTaken, now)
}

// Take records a dose at at and clears the notified flag so a later interval
// can remind again.
func (m *Medication) Take(at time.Time) DoseEvent {
	ev := DoseEvent{
		ID:        uuid.NewString(),
		Timestamp: at,
		Dose:      m.Dose,
	}
	m.History = append(m.History, ev)
	ts := at
	m.LastTaken = &ts
	m.Notified = false
	return ev
}

// Untake removes the most recent dose.
func (m *Medication) Untake() (DoseEvent, error) {
	if len(m.History) == 0 {
		return DoseEvent{}, fmt.Errorf("%q: %w", m.Name, ErrNothingToUndo)
	}
	last := m.History[len(m.History)-1]
	m.History = m.History[:len(m.History)-1]
	m.syncLastTaken()
	m.Notified = false
	return last, nil
}

// syncLastTaken re-derives LastTaken from History.
func (m *Medication) syncLastTaken() {
	if len(m.History) == 0 {
		m.LastTaken = nil
		return
	}
	ts := m.History[len(m.History)-1].Timestamp
	m.LastTaken = &ts
}

// Normalize restores the LastTaken invariant after decoding.
func (m *Medication) Normalize() {
	m.syncLastTaken()
	if m.IsPRN() {
		m.ScheduledTime = nil
	}
}

// HistorySince returns doses at or after cutoff (all when cutoff is nil),
// newest first.
func (m *Medication) HistorySince(cutoff *time.Time) []DoseEvent {
	out := make([]DoseEvent, 0, len(m.History))
	for i := len(m.History) - 1; i >= 0; i-- {
		ev := m.History[i]
		if cutoff != nil && ev.Timestamp.Before(*cutoff) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clone returns a deep copy.
func (m *Medication) Clone() *Medication {
	c := *m
	if m.ScheduledTime != nil {
		t := *m.ScheduledTime
		c.ScheduledTime = &t
	}
	if m.LastTaken != nil {
		t := *m.LastTaken
		c.LastTaken = &t
	}
	if m.ArchivedAt != nil {
		t := *m.ArchivedAt
		c.ArchivedAt = &t
	}
	c.History = append([]DoseEvent(nil), m.History...)
	return &c
}
