package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/cabinet"
	"github.com/stellarlinkco/pharm/internal/config"
	"github.com/stellarlinkco/pharm/internal/medication"
)

const (
	formatText = "text"
	formatJSON = "json"

	timeLayout = "2006-01-02 15:04"
)

var rule = strings.Repeat("=", 60)

// printer renders command results as text or JSON.
type printer struct {
	w    io.Writer
	errw io.Writer
	json bool
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) field(label, value string) {
	fmt.Fprintf(p.w, "  %-10s %s\n", label+":", value)
}

func fmtTime(t time.Time) string { return t.Local().Format(timeLayout) }

type medicationView struct {
	Name          string     `json:"name"`
	Dose          string     `json:"dose"`
	ScheduledTime string     `json:"scheduledTime,omitempty"`
	Frequency     string     `json:"frequency"`
	Notes         string     `json:"notes,omitempty"`
	LastTaken     *time.Time `json:"lastTaken,omitempty"`
	Doses         int        `json:"doses"`
	Archived      bool       `json:"archived"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	Due           *bool      `json:"due,omitempty"`
	NextDue       *time.Time `json:"nextDue,omitempty"`
}

func viewOf(m *medication.Medication) medicationView {
	v := medicationView{
		Name:       m.Name,
		Dose:       m.Dose,
		Frequency:  m.Frequency.String(),
		Notes:      m.Notes,
		LastTaken:  m.LastTaken,
		Doses:      len(m.History),
		Archived:   m.ArchivedAt != nil,
		ArchivedAt: m.ArchivedAt,
	}
	if m.ScheduledTime != nil {
		v.ScheduledTime = m.ScheduledTime.String()
	}
	return v
}

type doseView struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Dose      string    `json:"dose"`
}

func doseViewOf(ev medication.DoseEvent) doseView {
	return doseView{ID: ev.ID, Timestamp: ev.Timestamp, Dose: ev.Dose}
}

type actionView struct {
	Action     string         `json:"action"`
	Medication medicationView `json:"medication"`
	Dose       *doseView      `json:"dose,omitempty"`
	Changes    []string       `json:"changes,omitempty"`
}

func (p *printer) added(m *medication.Medication, unarchived bool) error {
	if p.json {
		action := "added"
		if unarchived {
			action = "unarchived"
		}
		return p.encode(actionView{Action: action, Medication: viewOf(m)})
	}
	if !unarchived {
		p.line("Added medication: %s", m.Name)
		return nil
	}
	p.line("Unarchived medication: %s", m.Name)
	if n := len(m.History); n > 0 {
		p.line("  Restored %d dose record(s) from archive", n)
		p.line("  View history with: pharm history %s", m.Name)
	}
	return nil
}

func (p *printer) removed(m *medication.Medication) error {
	if p.json {
		return p.encode(actionView{Action: "archived", Medication: viewOf(m)})
	}
	p.line("Archived medication: %s", m.Name)
	if n := len(m.History); n > 0 {
		p.line("  Preserved %d dose record(s) in archive", n)
		p.line("  View history anytime with: pharm history %s --archived", m.Name)
	}
	return nil
}

func (p *printer) dose(action string, m *medication.Medication, ev medication.DoseEvent) error {
	if p.json {
		dv := doseViewOf(ev)
		return p.encode(actionView{Action: action, Medication: viewOf(m), Dose: &dv})
	}
	if action == "taken" {
		p.line("Marked '%s' as taken at %s", m.Name, fmtTime(ev.Timestamp))
		return nil
	}
	p.line("Unmarked '%s' as taken (removed dose from %s)", m.Name, fmtTime(ev.Timestamp))
	return nil
}

func (p *printer) edited(m *medication.Medication, changes []string) error {
	if p.json {
		return p.encode(actionView{Action: "edited", Medication: viewOf(m), Changes: changes})
	}
	p.line("Updated '%s': %s", m.Name, strings.Join(changes, ", "))
	return nil
}

type skippedView struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type takeAllView struct {
	At      time.Time     `json:"at"`
	Taken   []string      `json:"taken"`
	Skipped []skippedView `json:"skipped"`
}

func (p *printer) takeAll(res cabinet.TakeAllResult) error {
	if p.json {
		v := takeAllView{At: res.At, Taken: res.Taken, Skipped: []skippedView{}}
		if v.Taken == nil {
			v.Taken = []string{}
		}
		for _, s := range res.Skipped {
			v.Skipped = append(v.Skipped, skippedView{Name: s.Name, Reason: string(s.Reason)})
		}
		return p.encode(v)
	}
	for _, s := range res.Skipped {
		p.line("Skipped %s: %s", s.Name, s.Reason)
	}
	if len(res.Taken) == 0 {
		p.line("No medications to mark as taken.")
		return nil
	}
	p.line("Marked %d medication(s) as taken at %s: %s", len(res.Taken), fmtTime(res.At), strings.Join(res.Taken, ", "))
	return nil
}

func (p *printer) list(entries []cabinet.Entry, opts cabinet.ListOptions) error {
	if p.json {
		out := make([]medicationView, 0, len(entries))
		for _, e := range entries {
			v := viewOf(e.Medication)
			if !e.Archived {
				due := e.Due
				v.Due = &due
				if e.HasNextDue {
					next := e.NextDue
					v.NextDue = &next
				}
			}
			out = append(out, v)
		}
		return p.encode(out)
	}

	if len(entries) == 0 {
		switch {
		case opts.DueOnly:
			p.line("No medications are currently due.")
		case opts.Archived:
			p.line("No archived medications found.")
		default:
			p.line("No active medications found.")
		}
		return nil
	}

	switch {
	case opts.DueOnly:
		p.line("Medications Due Now:")
	case opts.Archived:
		p.line("Archived Medications:")
	default:
		p.line("Active Medications:")
	}
	p.line(rule)

	for _, e := range entries {
		m := e.Medication
		p.line("")
		p.line(m.Name)
		p.field("Dose", m.Dose)
		if m.ScheduledTime != nil {
			p.field("Time", m.ScheduledTime.String())
		} else {
			p.field("Time", "as needed")
		}
		p.field("Frequency", m.Frequency.String())
		if m.LastTaken != nil {
			p.field("Last dose", fmtTime(*m.LastTaken))
		}
		switch {
		case e.Archived:
			if m.ArchivedAt != nil {
				p.field("Archived", fmtTime(*m.ArchivedAt))
			}
		case m.IsPRN():
		case e.Due:
			p.field("Due", "now")
		case e.HasNextDue:
			p.field("Next due", fmtTime(e.NextDue))
		}
		if m.Notes != "" {
			p.field("Notes", m.Notes)
		}
		if n := len(m.History); n > 0 {
			p.field("History", fmt.Sprintf("%d dose(s) recorded", n))
		}
	}
	return nil
}

type adherenceView struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AsNeeded bool      `json:"asNeeded"`
	Expected int       `json:"expected"`
	Actual   int       `json:"actual"`
	Percent  float64   `json:"percent"`
}

type reportView struct {
	Medication medicationView `json:"medication"`
	Days       int            `json:"days,omitempty"`
	Doses      []doseView     `json:"doses"`
	Adherence  adherenceView  `json:"adherence"`
}

func (p *printer) history(reports []cabinet.Report, opts cabinet.HistoryOptions) error {
	if p.json {
		out := make([]reportView, 0, len(reports))
		for _, r := range reports {
			v := reportView{
				Medication: viewOf(r.Medication),
				Days:       r.Days,
				Doses:      make([]doseView, 0, len(r.Doses)),
				Adherence: adherenceView{
					Start:    r.Adherence.Start,
					End:      r.Adherence.End,
					AsNeeded: r.Adherence.AsNeeded,
					Expected: r.Adherence.Expected,
					Actual:   r.Adherence.Actual,
					Percent:  r.Adherence.Percent(),
				},
			}
			v.Medication.Archived = r.Archived
			for _, ev := range r.Doses {
				v.Doses = append(v.Doses, doseViewOf(ev))
			}
			out = append(out, v)
		}
		return p.encode(out)
	}

	if len(reports) == 0 {
		if opts.Archived {
			p.line("No archived medications found.")
		} else {
			p.line("No medications found.")
		}
		return nil
	}

	for i, r := range reports {
		if i > 0 {
			p.line("")
		}
		title := r.Medication.Name
		if r.Archived {
			title += " [ARCHIVED]"
		}

		if len(r.Doses) == 0 {
			p.line("%s - No history recorded", title)
			if r.Days > 0 {
				p.line("  (No doses in last %d days)", r.Days)
			}
			continue
		}

		p.line("%s - History", title)
		if r.Days > 0 {
			p.line("  (Last %d days)", r.Days)
		}
		p.line(rule)
		for _, ev := range r.Doses {
			p.line("  %s - %s", fmtTime(ev.Timestamp), ev.Dose)
		}
		p.line("")
		a := r.Adherence
		if a.AsNeeded {
			p.line("  Total doses: %d (as needed)", len(r.Doses))
			continue
		}
		window := r.Days
		if window == 0 {
			window = cabinet.DefaultHistoryDays
		}
		p.line("  Doses in last %d days: %d (expected %d)", window, a.Actual, a.Expected)
		p.line("  Adherence: %.1f%%", a.Percent())
	}
	return nil
}

type statusView struct {
	Config   string `json:"config"`
	DataFile string `json:"dataFile"`
	Active   int    `json:"active"`
	AsNeeded int    `json:"asNeeded"`
	Due      int    `json:"due"`
	Archived int    `json:"archived"`
	Today    int    `json:"dosesToday"`
	Desktop  bool   `json:"desktop"`
	Telegram bool   `json:"telegram"`
	Status   string `json:"statusServer,omitempty"`
}

func (p *printer) status(cfgPath string, cfg *config.Config, sum cabinet.Summary) error {
	v := statusView{
		Config:   cfgPath,
		DataFile: cfg.DataFile,
		Active:   sum.Active,
		AsNeeded: sum.AsNeeded,
		Due:      sum.Due,
		Archived: sum.Archived,
		Today:    sum.DosesToday,
		Desktop:  cfg.Notify.Desktop.Enabled,
		Telegram: cfg.Notify.Telegram.Enabled,
	}
	if cfg.Daemon.Status.Enabled {
		v.Status = cfg.Daemon.Status.Addr()
	}
	if p.json {
		return p.encode(v)
	}

	p.line("Config: %s", v.Config)
	p.line("Data file: %s", v.DataFile)
	p.line("Active: %d (%d as needed)", v.Active, v.AsNeeded)
	p.line("Due now: %d", v.Due)
	p.line("Archived: %d", v.Archived)
	p.line("Doses today: %d", v.Today)
	p.line("Desktop: enabled=%v", v.Desktop)
	p.line("Telegram: enabled=%v", v.Telegram)
	if v.Status != "" {
		p.line("Status server: %s", v.Status)
	} else {
		p.line("Status server: disabled")
	}
	return nil
}

type errorView struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Archived bool   `json:"archived,omitempty"`
}

// failure reports err on the error stream.
func (p *printer) failure(err error) {
	if p.json {
		enc := json.NewEncoder(p.errw)
		enc.SetIndent("", "  ")
		_ = enc.Encode(errorView{Error: err.Error(), Kind: apperr.KindOf(err).String(), Archived: apperr.IsArchived(err)})
		return
	}
	var ae *apperr.Error
	if apperr.IsArchived(err) && errors.As(err, &ae) {
		fmt.Fprintf(p.errw, "Error: medication %q is archived\n", ae.Name)
		fmt.Fprintf(p.errw, "  Restore it with: pharm add %s --dose <dose> --time <time> --freq <freq>\n", ae.Name)
		return
	}
	fmt.Fprintf(p.errw, "Error: %v\n", err)
}
