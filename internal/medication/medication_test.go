package medication

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func newMed(t *testing.T, name, dose, tod, freq string) NewMedication {
	t.Helper()
	at, f, err := schedule.ParseSchedule(tod, freq)
	require.NoError(t, err)
	return NewMedication{Name: name, Dose: dose, ScheduledTime: at, Frequency: f}
}

func TestTake_AppendsAndSetsLastTaken(t *testing.T) {
	doc := NewDocument()
	m, _, err := doc.Add(newMed(t, "Aspirin", "500mg", "08:00", "daily"), date(2025, 1, 1, 7, 0))
	require.NoError(t, err)
	m.Notified = true

	ev := m.Take(date(2025, 1, 1, 8, 5))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "500mg", ev.Dose)
	require.Len(t, m.History, 1)
	require.NotNil(t, m.LastTaken)
	assert.True(t, m.LastTaken.Equal(date(2025, 1, 1, 8, 5)))
	assert.False(t, m.Notified, "taking clears the notified flag")

	m.Dose = "250mg"
	m.Take(date(2025, 1, 2, 8, 0))
	assert.Equal(t, "500mg", m.History[0].Dose, "history keeps the dose at the time")
	assert.Equal(t, "250mg", m.History[1].Dose)
	assert.True(t, m.LastTaken.Equal(m.History[1].Timestamp))
}

func TestUntake(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency()}

	_, err := m.Untake()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNothingToUndo))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	first := date(2025, 1, 1, 8, 0)
	second := date(2025, 1, 2, 8, 0)
	m.Take(first)
	m.Take(second)

	undone, err := m.Untake()
	require.NoError(t, err)
	assert.True(t, undone.Timestamp.Equal(second))
	require.NotNil(t, m.LastTaken)
	assert.True(t, m.LastTaken.Equal(first))

	_, err = m.Untake()
	require.NoError(t, err)
	assert.Nil(t, m.LastTaken)
	assert.Empty(t, m.History)
}

func TestUntakeThenTake_RestoresLength(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency()}
	m.Take(date(2025, 1, 1, 8, 0))
	m.Take(date(2025, 1, 2, 8, 0))
	before := len(m.History)

	undone, err := m.Untake()
	require.NoError(t, err)
	redone := m.Take(date(2025, 1, 2, 9, 0))

	assert.Len(t, m.History, before)
	assert.NotEqual(t, undone.ID, redone.ID)
	assert.False(t, undone.Timestamp.Equal(redone.Timestamp))
}

func TestSatisfied(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency(), ScheduledTime: &schedule.TimeOfDay{Hour: 20}}
	now := date(2025, 1, 1, 9, 0)
	assert.False(t, m.Satisfied(now), "never taken")

	m.Take(date(2025, 1, 1, 7, 0))
	assert.True(t, m.Satisfied(now))
	assert.False(t, m.Satisfied(date(2025, 1, 2, 0, 1)))

	prn := &Medication{Name: "Ibuprofen", Dose: "200mg", Frequency: schedule.AsNeeded()}
	prn.Take(now)
	assert.False(t, prn.Satisfied(now))
}

func TestAdherence(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency(), ScheduledTime: &schedule.TimeOfDay{Hour: 8}}
	start := date(2025, 1, 1, 0, 0)
	end := date(2025, 1, 11, 0, 0)
	for d := 1; d <= 5; d++ {
		m.Take(date(2025, 1, d, 8, 0))
	}
	m.Take(date(2024, 12, 31, 8, 0)) // outside the window

	a := m.Adherence(start, end)
	assert.False(t, a.AsNeeded)
	assert.Equal(t, 10, a.Expected)
	assert.Equal(t, 5, a.Actual)
	assert.InDelta(t, 0.5, a.Ratio, 1e-9)
	assert.InDelta(t, 50.0, a.Percent(), 1e-9)
}

func TestAdherence_ZeroExpectedIsFull(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.WeeklyFrequency(), ScheduledTime: &schedule.TimeOfDay{Hour: 8}}
	now := date(2025, 1, 1, 12, 0)
	a := m.Adherence(now, now)
	assert.Equal(t, 0, a.Expected)
	assert.Equal(t, 1.0, a.Ratio)
}

func TestAdherence_ClampedAndPRN(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency(), ScheduledTime: &schedule.TimeOfDay{Hour: 8}}
	for h := 8; h < 12; h++ {
		m.Take(date(2025, 1, 1, h, 0))
	}
	a := m.Adherence(date(2025, 1, 1, 0, 0), date(2025, 1, 2, 0, 0))
	assert.Equal(t, 1, a.Expected)
	assert.Equal(t, 4, a.Actual)
	assert.Equal(t, 1.0, a.Ratio)

	prn := &Medication{Name: "Ibuprofen", Dose: "200mg", Frequency: schedule.AsNeeded()}
	prn.Take(date(2025, 1, 1, 13, 0))
	a = prn.Adherence(date(2025, 1, 1, 0, 0), date(2025, 1, 31, 0, 0))
	assert.True(t, a.AsNeeded)
	assert.Equal(t, 1, a.Actual)
	assert.Equal(t, 0, a.Expected)
}

func TestHistorySince(t *testing.T) {
	m := &Medication{Name: "Aspirin", Dose: "500mg", Frequency: schedule.DailyFrequency()}
	m.Take(date(2025, 1, 1, 8, 0))
	m.Take(date(2025, 1, 5, 8, 0))
	m.Take(date(2025, 1, 9, 8, 0))

	all := m.HistorySince(nil)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.Equal(date(2025, 1, 9, 8, 0)), "newest first")

	cutoff := date(2025, 1, 5, 0, 0)
	recent := m.HistorySince(&cutoff)
	assert.Len(t, recent, 2)
}
