package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

func sampleDocument(t *testing.T) *medication.Document {
	t.Helper()
	doc := medication.NewDocument()
	created := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)

	at := schedule.MustParseTime("08:00")
	m, _, err := doc.Add(medication.NewMedication{
		Name: "Aspirin", Dose: "500mg", ScheduledTime: &at,
		Frequency: schedule.DailyFrequency(), Notes: "with food",
	}, created)
	require.NoError(t, err)
	m.Take(time.Date(2025, 1, 1, 8, 5, 0, 0, time.UTC))
	m.Take(time.Date(2025, 1, 2, 8, 1, 0, 0, time.UTC))

	_, _, err = doc.Add(medication.NewMedication{
		Name: "Ibuprofen", Dose: "200mg", Frequency: schedule.AsNeeded(),
	}, created)
	require.NoError(t, err)

	b12 := schedule.MustParseTime("09:30")
	_, _, err = doc.Add(medication.NewMedication{
		Name: "B12", Dose: "1000mcg", ScheduledTime: &b12, Frequency: schedule.EveryDays(7),
	}, created)
	require.NoError(t, err)
	_, err = doc.Remove("B12", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return doc
}

func assertSameDocument(t *testing.T, want, got *medication.Document) {
	t.Helper()
	require.Len(t, got.Medications, len(want.Medications))
	require.Len(t, got.Archived, len(want.Archived))
	check := func(w, g *medication.Medication) {
		assert.Equal(t, w.Name, g.Name)
		assert.Equal(t, w.Dose, g.Dose)
		assert.Equal(t, w.ScheduledTime, g.ScheduledTime)
		assert.Equal(t, w.Frequency, g.Frequency)
		assert.Equal(t, w.Notes, g.Notes)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		if w.LastTaken == nil {
			assert.Nil(t, g.LastTaken)
		} else {
			require.NotNil(t, g.LastTaken)
			assert.True(t, w.LastTaken.Equal(*g.LastTaken))
		}
		if w.ArchivedAt == nil {
			assert.Nil(t, g.ArchivedAt)
		} else {
			require.NotNil(t, g.ArchivedAt)
			assert.True(t, w.ArchivedAt.Equal(*g.ArchivedAt))
		}
		require.Len(t, g.History, len(w.History))
		for i := range w.History {
			assert.Equal(t, w.History[i].ID, g.History[i].ID)
			assert.Equal(t, w.History[i].Dose, g.History[i].Dose)
			assert.True(t, w.History[i].Timestamp.Equal(g.History[i].Timestamp))
		}
	}
	for i := range want.Medications {
		check(want.Medications[i], got.Medications[i])
	}
	for i := range want.Archived {
		check(want.Archived[i], got.Archived[i])
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, name := range []string{"meds.json", "meds.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			s := NewFileStore(path, nil)
			want := sampleDocument(t)

			require.NoError(t, s.Save(context.Background(), want))
			got, err := s.Load(context.Background())
			require.NoError(t, err)
			assertSameDocument(t, want, got)

			// a second save of the loaded document is byte-identical
			first, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, s.Save(context.Background(), got))
			second, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestFileStore_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "meds.json")
	s := NewFileStore(path, nil)
	require.NoError(t, s.Save(context.Background(), medication.NewDocument()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FilePerm, info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_Missing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "none.json"), nil)
	_, err := s.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNoDocument))

	doc, err := LoadOrEmpty(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, doc.Medications)
	assert.Empty(t, doc.Archived)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meds.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	doc, err := NewFileStore(path, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Medications)
}

func TestFileStore_CorruptedIsBackedUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meds.json")
	garbage := []byte(`{"medications": [`)
	require.NoError(t, os.WriteFile(path, garbage, 0o600))

	_, err := NewFileStore(path, nil).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrPersistence))

	backup, err := os.ReadFile(path + ".corrupted")
	require.NoError(t, err)
	assert.Equal(t, garbage, backup)

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, original, "the unreadable file is left in place")
}

func TestFileStore_InvalidTimeIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meds.json")
	data := `{"medications":[{"name":"A","dose":"1","scheduled_time":"25:00","frequency":"daily","history":[]}],"archived_medications":[]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := NewFileStore(path, nil).Load(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrPersistence))
}

func TestDecode_LegacyArray(t *testing.T) {
	data := `[
  {
    "name": "Aspirin",
    "dose": "500mg",
    "time_of_day": "08:00",
    "medication_frequency": "daily",
    "history": [
      {"timestamp": "08:05:00 - 2024/03/01", "dose": "500mg"},
      {"timestamp": "08:02:00 - 2024/03/02", "dose": "500mg"}
    ]
  }
]`
	doc, migrated, err := Decode([]byte(data), FormatJSON, nil)
	require.NoError(t, err)
	assert.True(t, migrated)
	require.Len(t, doc.Medications, 1)
	assert.Empty(t, doc.Archived)

	m := doc.Medications[0]
	assert.Equal(t, schedule.TimeOfDay{Hour: 8}, *m.ScheduledTime)
	assert.Equal(t, schedule.DailyFrequency(), m.Frequency)
	require.Len(t, m.History, 2)
	assert.NotEmpty(t, m.History[0].ID)
	require.NotNil(t, m.LastTaken)
	assert.True(t, m.LastTaken.Equal(time.Date(2024, 3, 2, 8, 2, 0, 0, time.Local)))
}

func TestDecode_UnknownFrequencyFallsBackToDaily(t *testing.T) {
	data := `{"medications":[{"name":"A","dose":"1","scheduled_time":"08:00","frequency":"fortnightly-ish","history":[]}]}`
	doc, migrated, err := Decode([]byte(data), FormatJSON, nil)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, schedule.DailyFrequency(), doc.Medications[0].Frequency)
}

func TestDecode_LastTakenDerivedFromHistory(t *testing.T) {
	data := `{"medications":[{"name":"A","dose":"1","scheduled_time":"08:00","frequency":"daily",
	  "last_taken":"2030-01-01T00:00:00Z","history":[]}],"archived_medications":[]}`
	doc, _, err := Decode([]byte(data), FormatJSON, nil)
	require.NoError(t, err)
	assert.Nil(t, doc.Medications[0].LastTaken)
}

func TestDecode_LastDoseDateBecomesDose(t *testing.T) {
	data := `[
  {"name": "B12", "dose": "1000mcg", "time_of_day": "09:00", "medication_frequency": "every 7 days",
   "last_dose_date": "2024-03-05", "history": []},
  {"name": "Ibuprofen", "dose": "200mg", "medication_frequency": "as needed", "last_dose_date": "2024-03-04"},
  {"name": "Aspirin", "dose": "500mg", "time_of_day": "08:00", "medication_frequency": "daily",
   "last_dose_date": "2024-03-06", "history": [{"timestamp": "08:05:00 - 2024/03/01", "dose": "500mg"}]},
  {"name": "Zinc", "dose": "10mg", "time_of_day": "08:00", "medication_frequency": "daily", "last_dose_date": "soon"}
]`
	doc, migrated, err := Decode([]byte(data), FormatJSON, nil)
	require.NoError(t, err)
	assert.True(t, migrated)
	require.Len(t, doc.Medications, 4)

	b12 := doc.Medications[0]
	require.Len(t, b12.History, 1)
	assert.NotEmpty(t, b12.History[0].ID)
	assert.Equal(t, "1000mcg", b12.History[0].Dose)
	require.NotNil(t, b12.LastTaken)
	assert.True(t, b12.LastTaken.Equal(time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)))

	prn := doc.Medications[1]
	require.Len(t, prn.History, 1)
	assert.True(t, prn.History[0].Timestamp.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)))

	aspirin := doc.Medications[2]
	require.Len(t, aspirin.History, 1, "recorded history wins over last_dose_date")
	assert.Equal(t, 1, aspirin.History[0].Timestamp.Day())

	assert.Empty(t, doc.Medications[3].History)
	assert.Nil(t, doc.Medications[3].LastTaken)

	out, err := Encode(doc, FormatJSON)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "last_dose_date")
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	data := `{"version": 3, "medications":[{"name":"A","dose":"1","frequency":"prn","color":"red","history":[]}]}`
	doc, migrated, err := Decode([]byte(data), FormatJSON, nil)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.True(t, doc.Medications[0].IsPRN())
	assert.Nil(t, doc.Medications[0].ScheduledTime)
}

func TestEncode_CanonicalFrequency(t *testing.T) {
	doc := sampleDocument(t)
	data, err := Encode(doc, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"frequency": "daily"`)
	assert.Contains(t, string(data), `"frequency": "prn"`)
	assert.Contains(t, string(data), `"frequency": "every 7 days"`)
	assert.NotContains(t, string(data), "time_of_day")
	assert.NotContains(t, string(data), "Notified")
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNoDocument))

	doc := sampleDocument(t)
	require.NoError(t, s.Save(context.Background(), doc))
	doc.Medications[0].Dose = "changed"

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "500mg", got.Medications[0].Dose, "stored copy is isolated")
	assert.Equal(t, 1, s.Saves())

	boom := errors.New("disk full")
	s.SetErrors(nil, boom)
	assert.ErrorIs(t, s.Save(context.Background(), doc), boom)
	assert.Equal(t, 1, s.Saves())
}
