package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

// legacyTimestampLayout is how the first releases wrote dose timestamps.
const legacyTimestampLayout = "15:04:05 - 2006/01/02"

// legacyDateLayout is the day-only last_dose_date of the first releases.
const legacyDateLayout = "2006-01-02"

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension; JSON unless .yaml/.yml.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

type documentRecord struct {
	Medications []medicationRecord `json:"medications" yaml:"medications"`
	Archived    []medicationRecord `json:"archived_medications" yaml:"archived_medications"`
}

type medicationRecord struct {
	Name          string       `json:"name" yaml:"name"`
	Dose          string       `json:"dose" yaml:"dose"`
	ScheduledTime string       `json:"scheduled_time,omitempty" yaml:"scheduled_time,omitempty"`
	Frequency     string       `json:"frequency" yaml:"frequency"`
	Notes         string       `json:"notes,omitempty" yaml:"notes,omitempty"`
	LastTaken     string       `json:"last_taken,omitempty" yaml:"last_taken,omitempty"`
	CreatedAt     string       `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ArchivedAt    string       `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`
	History       []doseRecord `json:"history" yaml:"history"`

	// Field names used by the first releases, read but never written.
	TimeOfDay           string `json:"time_of_day,omitempty" yaml:"time_of_day,omitempty"`
	MedicationFrequency string `json:"medication_frequency,omitempty" yaml:"medication_frequency,omitempty"`
	LastDoseDate        string `json:"last_dose_date,omitempty" yaml:"last_dose_date,omitempty"`
}

type doseRecord struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Dose      string `json:"dose" yaml:"dose"`
}

// Encode renders doc in the given format.
func Encode(doc *medication.Document, format Format) ([]byte, error) {
	rec := documentRecord{
		Medications: make([]medicationRecord, 0, len(doc.Medications)),
		Archived:    make([]medicationRecord, 0, len(doc.Archived)),
	}
	for _, m := range doc.Medications {
		rec.Medications = append(rec.Medications, toRecord(m))
	}
	for _, m := range doc.Archived {
		rec.Archived = append(rec.Archived, toRecord(m))
	}

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// Decode parses a document. A JSON array at the top level is the oldest
// format (active medications only) and is migrated. migrated reports whether
// any legacy shape was seen.
func Decode(data []byte, format Format, logger *zap.Logger) (doc *medication.Document, migrated bool, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rec documentRecord

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, false, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return medication.NewDocument(), false, nil
		}
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &rec.Medications); err != nil {
				return nil, false, fmt.Errorf("parse legacy json: %w", err)
			}
			migrated = true
		} else if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, false, fmt.Errorf("parse json: %w", err)
		}
	}

	doc = medication.NewDocument()
	for _, r := range rec.Medications {
		m, legacy, err := fromRecord(r, logger)
		if err != nil {
			return nil, false, err
		}
		migrated = migrated || legacy
		doc.Medications = append(doc.Medications, m)
	}
	for _, r := range rec.Archived {
		m, legacy, err := fromRecord(r, logger)
		if err != nil {
			return nil, false, err
		}
		migrated = migrated || legacy
		doc.Archived = append(doc.Archived, m)
	}
	return doc, migrated, nil
}

func toRecord(m *medication.Medication) medicationRecord {
	r := medicationRecord{
		Name:      m.Name,
		Dose:      m.Dose,
		Frequency: m.Frequency.String(),
		Notes:     m.Notes,
		History:   make([]doseRecord, 0, len(m.History)),
	}
	if m.ScheduledTime != nil && !m.IsPRN() {
		r.ScheduledTime = m.ScheduledTime.String()
	}
	if m.LastTaken != nil {
		r.LastTaken = formatTime(*m.LastTaken)
	}
	if !m.CreatedAt.IsZero() {
		r.CreatedAt = formatTime(m.CreatedAt)
	}
	if m.ArchivedAt != nil {
		r.ArchivedAt = formatTime(*m.ArchivedAt)
	}
	for _, ev := range m.History {
		r.History = append(r.History, doseRecord{ID: ev.ID, Timestamp: formatTime(ev.Timestamp), Dose: ev.Dose})
	}
	return r
}

func fromRecord(r medicationRecord, logger *zap.Logger) (*medication.Medication, bool, error) {
	legacy := false
	m := &medication.Medication{
		Name:    r.Name,
		Dose:    r.Dose,
		Notes:   r.Notes,
		History: make([]medication.DoseEvent, 0, len(r.History)),
	}

	freqText := r.Frequency
	if freqText == "" && r.MedicationFrequency != "" {
		freqText = r.MedicationFrequency
		legacy = true
	}
	freq, err := schedule.ParseFrequency(freqText)
	if err != nil {
		// Unknown frequencies from older files remind daily rather than never.
		logger.Warn("unrecognised frequency, treating as daily",
			zap.String("medication", r.Name), zap.String("frequency", freqText))
		freq = schedule.DailyFrequency()
		legacy = true
	}
	m.Frequency = freq

	timeText := r.ScheduledTime
	if timeText == "" && r.TimeOfDay != "" {
		timeText = r.TimeOfDay
		legacy = true
	}
	if !freq.IsPRN() {
		at, err := schedule.ParseTime(timeText)
		if err != nil {
			return nil, false, fmt.Errorf("medication %q: %w", r.Name, err)
		}
		m.ScheduledTime = &at
	}

	if r.CreatedAt != "" {
		if ts, _, err := parseTime(r.CreatedAt); err == nil {
			m.CreatedAt = ts
		}
	}
	if r.ArchivedAt != "" {
		if ts, _, err := parseTime(r.ArchivedAt); err == nil {
			m.ArchivedAt = &ts
		}
	}
	for i, h := range r.History {
		ts, old, err := parseTime(h.Timestamp)
		if err != nil {
			return nil, false, fmt.Errorf("medication %q history[%d]: %w", r.Name, i, err)
		}
		legacy = legacy || old
		id := h.ID
		if id == "" {
			id = uuid.NewString()
		}
		m.History = append(m.History, medication.DoseEvent{ID: id, Timestamp: ts, Dose: h.Dose})
	}
	if len(m.History) == 0 && r.LastDoseDate != "" {
		// Files older than dose history only know the day of the last dose.
		day, err := time.ParseInLocation(legacyDateLayout, r.LastDoseDate, time.Local)
		if err != nil {
			logger.Warn("ignoring unreadable last dose date",
				zap.String("medication", r.Name), zap.String("last_dose_date", r.LastDoseDate))
		} else {
			ts := day
			if m.ScheduledTime != nil {
				ts = m.ScheduledTime.On(day)
			}
			m.History = append(m.History, medication.DoseEvent{ID: uuid.NewString(), Timestamp: ts, Dose: m.Dose})
		}
		legacy = true
	}

	// LastTaken is derived from history, whatever the file says.
	m.Normalize()
	return m, legacy, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (t time.Time, legacy bool, err error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(legacyTimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, true, nil
}
