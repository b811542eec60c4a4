package cabinet

import (
	"context"
	"strings"
	"time"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

// ListOptions filters List. Archived lists the archive instead of the
// active set; DueOnly keeps only active medications due now.
type ListOptions struct {
	Archived bool
	DueOnly  bool
}

// Entry is one listed medication evaluated at the time of listing.
type Entry struct {
	Medication *medication.Medication
	Archived   bool
	Due        bool
	NextDue    time.Time
	HasNextDue bool
}

// List returns medications in document order.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if opts.Archived {
		out := make([]Entry, 0, len(doc.Archived))
		for _, m := range doc.Archived {
			out = append(out, Entry{Medication: m, Archived: true})
		}
		return out, nil
	}

	out := make([]Entry, 0, len(doc.Medications))
	for _, m := range doc.Medications {
		e := Entry{Medication: m, Due: m.IsDue(now)}
		if opts.DueOnly && !e.Due {
			continue
		}
		e.NextDue, e.HasNextDue = m.NextDue(now)
		out = append(out, e)
	}
	return out, nil
}

// HistoryOptions filters History. Days limits doses to the last N days and
// sets the adherence window; zero shows every dose against a
// DefaultHistoryDays window. Archived restricts to archived medications.
type HistoryOptions struct {
	Name     string
	Days     int
	Archived bool
}

// Report is the dose history of one medication.
type Report struct {
	Medication *medication.Medication
	Archived   bool
	Days       int
	Doses      []medication.DoseEvent // newest first
	Adherence  medication.Adherence
}

// History returns dose history and adherence for active and archived
// medications, or for the named one.
func (s *Service) History(ctx context.Context, opts HistoryOptions) ([]Report, error) {
	if opts.Days < 0 {
		return nil, apperr.Validation("history", "days must be positive, got %d", opts.Days)
	}
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	type candidate struct {
		m        *medication.Medication
		archived bool
	}
	var all []candidate
	if !opts.Archived {
		for _, m := range doc.Medications {
			all = append(all, candidate{m, false})
		}
	}
	for _, m := range doc.Archived {
		all = append(all, candidate{m, true})
	}

	if name := strings.TrimSpace(opts.Name); name != "" {
		var found []candidate
		for _, c := range all {
			if c.m.Name == name {
				found = append(found, c)
			}
		}
		if len(found) == 0 {
			return nil, apperr.NotFound("history", opts.Name)
		}
		all = found
	}

	window := opts.Days
	if window == 0 {
		window = DefaultHistoryDays
	}
	start := now.AddDate(0, 0, -window)
	var cutoff *time.Time
	if opts.Days > 0 {
		cutoff = &start
	}

	out := make([]Report, 0, len(all))
	for _, c := range all {
		out = append(out, Report{
			Medication: c.m,
			Archived:   c.archived,
			Days:       opts.Days,
			Doses:      c.m.HistorySince(cutoff),
			Adherence:  c.m.Adherence(start, now),
		})
	}
	return out, nil
}

// Summary counts the document at a point in time.
type Summary struct {
	Active     int
	Archived   int
	AsNeeded   int
	Due        int
	DosesToday int
}

// Status summarises the document.
func (s *Service) Status(ctx context.Context) (Summary, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}
	now := s.now()
	sum := Summary{Active: len(doc.Medications), Archived: len(doc.Archived)}
	for _, m := range doc.Medications {
		if m.IsPRN() {
			sum.AsNeeded++
		} else if m.IsDue(now) {
			sum.Due++
		}
		for _, ev := range m.History {
			if schedule.SameDay(ev.Timestamp, now) {
				sum.DosesToday++
			}
		}
	}
	return sum, nil
}
