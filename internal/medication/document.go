package medication

import (
	"strings"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

// Document is the whole persisted state: active and archived medications.
// A name appears in at most one of the two sets.
type Document struct {
	Medications []*Medication
	Archived    []*Medication
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Medications: []*Medication{}, Archived: []*Medication{}}
}

// NewMedication carries the validated fields of an add request.
type NewMedication struct {
	Name          string
	Dose          string
	ScheduledTime *schedule.TimeOfDay
	Frequency     schedule.Frequency
	Notes         string
}

// Changes lists the fields an edit overwrites; nil fields are left alone.
// An empty Notes clears the notes.
type Changes struct {
	Dose          *string
	ScheduledTime *schedule.TimeOfDay
	Frequency     *schedule.Frequency
	Notes         *string
}

// IsEmpty reports whether no field would change.
func (c Changes) IsEmpty() bool {
	return c.Dose == nil && c.ScheduledTime == nil && c.Frequency == nil && c.Notes == nil
}

// indexOf matches names the way Add stores them, trimmed.
func indexOf(set []*Medication, name string) int {
	name = strings.TrimSpace(name)
	for i, m := range set {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Active returns the active medication with the given name.
func (d *Document) Active(name string) (*Medication, bool) {
	if i := indexOf(d.Medications, name); i >= 0 {
		return d.Medications[i], true
	}
	return nil, false
}

// ArchivedByName returns the archived medication with the given name.
func (d *Document) ArchivedByName(name string) (*Medication, bool) {
	if i := indexOf(d.Archived, name); i >= 0 {
		return d.Archived[i], true
	}
	return nil, false
}

// Find looks a name up in both sets.
func (d *Document) Find(name string) (m *Medication, archived bool, ok bool) {
	if m, ok := d.Active(name); ok {
		return m, false, true
	}
	if m, ok := d.ArchivedByName(name); ok {
		return m, true, true
	}
	return nil, false, false
}

// MustActive returns the named active medication or a NotFound error for op,
// flagged when the name is archived.
func (d *Document) MustActive(op, name string) (*Medication, error) {
	name = strings.TrimSpace(name)
	if m, ok := d.Active(name); ok {
		return m, nil
	}
	err := apperr.NotFound(op, name)
	_, err.Archived = d.ArchivedByName(name)
	return nil, err
}

// Add creates a medication, or unarchives one with the same name: schedule
// fields are overwritten, history and LastTaken are kept. Adding a name that
// is already active fails.
func (d *Document) Add(req NewMedication, now time.Time) (m *Medication, unarchived bool, err error) {
	if err := validateNew(&req); err != nil {
		return nil, false, err
	}
	if _, ok := d.Active(req.Name); ok {
		return nil, false, apperr.AlreadyExists("add", req.Name)
	}

	if i := indexOf(d.Archived, req.Name); i >= 0 {
		m = d.Archived[i]
		d.Archived = append(d.Archived[:i], d.Archived[i+1:]...)
		m.Dose = req.Dose
		m.ScheduledTime = req.ScheduledTime
		m.Frequency = req.Frequency
		m.Notes = req.Notes
		m.Notified = false
		m.ArchivedAt = nil
		m.syncLastTaken()
		d.Medications = append(d.Medications, m)
		return m, true, nil
	}

	m = &Medication{
		Name:          req.Name,
		Dose:          req.Dose,
		ScheduledTime: req.ScheduledTime,
		Frequency:     req.Frequency,
		Notes:         req.Notes,
		History:       []DoseEvent{},
		CreatedAt:     now,
	}
	d.Medications = append(d.Medications, m)
	return m, false, nil
}

func validateNew(req *NewMedication) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Dose = strings.TrimSpace(req.Dose)
	if req.Name == "" {
		return apperr.Validation("add", "medication name cannot be empty")
	}
	if req.Dose == "" {
		return apperr.Validation("add", "dose cannot be empty")
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Frequency.IsPRN() {
		req.ScheduledTime = nil
	}
	return validateSchedule("add", req.Frequency, req.ScheduledTime)
}

func validateSchedule(op string, freq schedule.Frequency, at *schedule.TimeOfDay) error {
	switch freq.Kind {
	case schedule.PRN:
		return nil
	case schedule.EveryNDays, schedule.EveryNWeeks:
		if freq.N <= 0 {
			return apperr.Validation(op, "interval must be at least 1, got %d", freq.N)
		}
	case schedule.Daily, schedule.Weekly, schedule.Monthly:
	default:
		return apperr.Validation(op, "frequency is required")
	}
	if at == nil {
		return apperr.Validation(op, "a scheduled time is required for %s medications", freq)
	}
	return nil
}

// Remove archives the named active medication with its full history.
func (d *Document) Remove(name string, now time.Time) (*Medication, error) {
	i := indexOf(d.Medications, name)
	if i < 0 {
		_, err := d.MustActive("remove", name)
		return nil, err
	}
	m := d.Medications[i]
	d.Medications = append(d.Medications[:i], d.Medications[i+1:]...)
	ts := now
	m.ArchivedAt = &ts
	m.Notified = false
	d.Archived = append(d.Archived, m)
	return m, nil
}

// Edit overwrites the supplied fields of an active medication.
func (d *Document) Edit(name string, c Changes) (*Medication, error) {
	m, err := d.MustActive("edit", name)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperr.Validation("edit", "no changes specified for %q", name)
	}

	dose := m.Dose
	if c.Dose != nil {
		dose = strings.TrimSpace(*c.Dose)
		if dose == "" {
			return nil, apperr.Validation("edit", "dose cannot be empty")
		}
	}
	freq := m.Frequency
	if c.Frequency != nil {
		freq = *c.Frequency
	}
	at := m.ScheduledTime
	if c.ScheduledTime != nil {
		t := *c.ScheduledTime
		at = &t
	}
	if freq.IsPRN() {
		at = nil
	}
	if err := validateSchedule("edit", freq, at); err != nil {
		return nil, err
	}

	m.Dose = dose
	m.Frequency = freq
	m.ScheduledTime = at
	if c.Notes != nil {
		m.Notes = strings.TrimSpace(*c.Notes)
	}
	return m, nil
}

// Clone returns a deep copy, used to apply a mutation all-or-nothing.
func (d *Document) Clone() *Document {
	c := &Document{
		Medications: make([]*Medication, len(d.Medications)),
		Archived:    make([]*Medication, len(d.Archived)),
	}
	for i, m := range d.Medications {
		c.Medications[i] = m.Clone()
	}
	for i, m := range d.Archived {
		c.Archived[i] = m.Clone()
	}
	return c
}

// Normalize re-derives LastTaken for every record.
func (d *Document) Normalize() {
	for _, m := range d.Medications {
		m.Normalize()
	}
	for _, m := range d.Archived {
		m.Normalize()
	}
}
