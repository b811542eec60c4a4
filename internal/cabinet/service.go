// Package cabinet is the command-side service: every operation loads the
// document, applies one change to a copy and saves it back whole.
package cabinet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/store"
)

// DefaultHistoryDays is the adherence window used when history is not
// limited to a number of days.
const DefaultHistoryDays = 30

// Options configures a Service.
type Options struct {
	Now    func() time.Time
	Logger *zap.Logger
}

// Service runs medication operations against a store.
type Service struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Service over st.
func New(st store.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		now:    opts.Now,
		logger: opts.Logger.Named("cabinet"),
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) load(ctx context.Context) (*medication.Document, error) {
	return store.LoadOrEmpty(ctx, s.store)
}

// mutate applies fn to a copy of the document and saves it when fn succeeds.
// A failing fn leaves the stored document untouched.
func (s *Service) mutate(ctx context.Context, fn func(doc *medication.Document) error) error {
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	work := doc.Clone()
	if err := fn(work); err != nil {
		return err
	}
	return s.store.Save(ctx, work)
}

// Add creates a medication or unarchives one with the same name.
func (s *Service) Add(ctx context.Context, req medication.NewMedication) (m *medication.Medication, unarchived bool, err error) {
	now := s.now()
	err = s.mutate(ctx, func(doc *medication.Document) error {
		m, unarchived, err = doc.Add(req, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("medication added",
		zap.String("name", m.Name),
		zap.Stringer("frequency", m.Frequency),
		zap.Bool("unarchived", unarchived))
	return m, unarchived, nil
}

// Edit overwrites the given fields of an active medication.
func (s *Service) Edit(ctx context.Context, name string, c medication.Changes) (*medication.Medication, error) {
	var m *medication.Medication
	err := s.mutate(ctx, func(doc *medication.Document) (err error) {
		m, err = doc.Edit(name, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("medication edited", zap.String("name", name))
	return m, nil
}

// Remove archives an active medication.
func (s *Service) Remove(ctx context.Context, name string) (*medication.Medication, error) {
	now := s.now()
	var m *medication.Medication
	err := s.mutate(ctx, func(doc *medication.Document) (err error) {
		m, err = doc.Remove(name, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("medication archived", zap.String("name", name), zap.Int("doses", len(m.History)))
	return m, nil
}

// Take records a dose of the named active medication now.
func (s *Service) Take(ctx context.Context, name string) (*medication.Medication, medication.DoseEvent, error) {
	now := s.now()
	var (
		m  *medication.Medication
		ev medication.DoseEvent
	)
	err := s.mutate(ctx, func(doc *medication.Document) (err error) {
		if m, err = doc.MustActive("take", name); err != nil {
			return err
		}
		ev = m.Take(now)
		return nil
	})
	if err != nil {
		return nil, medication.DoseEvent{}, err
	}
	s.logger.Debug("dose recorded", zap.String("name", name), zap.String("id", ev.ID))
	return m, ev, nil
}

// Untake removes the most recent dose of the named active medication.
func (s *Service) Untake(ctx context.Context, name string) (*medication.Medication, medication.DoseEvent, error) {
	var (
		m  *medication.Medication
		ev medication.DoseEvent
	)
	err := s.mutate(ctx, func(doc *medication.Document) (err error) {
		if m, err = doc.MustActive("untake", name); err != nil {
			return err
		}
		ev, err = m.Untake()
		return err
	})
	if err != nil {
		return nil, medication.DoseEvent{}, err
	}
	s.logger.Debug("dose removed", zap.String("name", name), zap.String("id", ev.ID))
	return m, ev, nil
}

// SkipReason says why take-all left a medication alone.
type SkipReason string

const (
	SkipAsNeeded  SkipReason = "as needed"
	SkipSatisfied SkipReason = "already taken for this interval"
)

// Skipped is a medication take-all did not record.
type Skipped struct {
	Name   string
	Reason SkipReason
}

// TakeAllResult lists what take-all did.
type TakeAllResult struct {
	At      time.Time
	Taken   []string
	Skipped []Skipped
}

// TakeAll records a dose for every active scheduled medication. PRN
// medications are never included; medications already taken for their
// current interval are skipped unless force is set.
func (s *Service) TakeAll(ctx context.Context, force bool) (TakeAllResult, error) {
	now := s.now()
	res := TakeAllResult{At: now}

	doc, err := s.load(ctx)
	if err != nil {
		return res, err
	}
	work := doc.Clone()
	for _, m := range work.Medications {
		switch {
		case m.IsPRN():
			res.Skipped = append(res.Skipped, Skipped{Name: m.Name, Reason: SkipAsNeeded})
		case !force && m.Satisfied(now):
			res.Skipped = append(res.Skipped, Skipped{Name: m.Name, Reason: SkipSatisfied})
		default:
			m.Take(now)
			res.Taken = append(res.Taken, m.Name)
		}
	}
	if len(res.Taken) == 0 {
		return res, nil
	}
	if err := s.store.Save(ctx, work); err != nil {
		return TakeAllResult{At: now}, err
	}
	s.logger.Debug("take-all recorded", zap.Strings("taken", res.Taken), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
