// Package daemon runs the reminder loop: on every poll it evaluates each
// scheduled medication and notifies once per dosing interval.
//
// The notified set lives only in the daemon's memory. It is cleared at
// startup and whenever the local calendar date changes, and an entry is
// dropped as soon as the medication's last dose changes, so a take or untake
// made from another process re-arms the reminder. The daemon never writes
// the medication document.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/config"
	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/notify"
	"github.com/stellarlinkco/pharm/internal/schedule"
	"github.com/stellarlinkco/pharm/internal/store"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultOverdueAfter = 2 * time.Hour

	ReminderTitle = "Medication Reminder"

	stopTimeout = 10 * time.Second
)

// State is the loop's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateNotifying
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateNotifying:
		return "notifying"
	default:
		return "idle"
	}
}

// Options configures a Daemon.
type Options struct {
	Store  store.Store
	Sink   notify.Sink // a *notify.Dispatcher is started and drained by Run
	Logger *zap.Logger
	Now    func() time.Time

	PollInterval time.Duration
	OverdueAfter time.Duration

	Status     config.StatusConfig
	Registry   *prometheus.Registry
	SignalChan chan os.Signal // for testing signal handling
}

// CycleReport summarises one poll.
type CycleReport struct {
	At       time.Time `json:"at"`
	Checked  int       `json:"checked"`
	Due      int       `json:"due"`
	Notified int       `json:"notified"`
	Reset    bool      `json:"reset"`
	Error    string    `json:"error,omitempty"`
}

// notifiedEntry remembers the last dose seen when a reminder went out.
type notifiedEntry struct {
	lastTaken *time.Time
	at        time.Time
}

type Daemon struct {
	store        store.Store
	sink         notify.Sink
	dispatcher   *notify.Dispatcher
	logger       *zap.Logger
	now          func() time.Time
	pollInterval time.Duration
	overdueAfter time.Duration
	status       config.StatusConfig
	registry     *prometheus.Registry
	metrics      *Metrics
	signalChan   chan os.Signal

	state atomic.Int32

	mu         sync.Mutex // serialises cycles and guards the fields below
	lastDay    time.Time
	hasLastDay bool
	notified   map[string]notifiedEntry
	lastReport CycleReport
	cycles     int
}

func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: store is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("daemon: sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.OverdueAfter <= 0 {
		opts.OverdueAfter = DefaultOverdueAfter
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	d := &Daemon{
		store:        opts.Store,
		sink:         opts.Sink,
		logger:       opts.Logger.Named("daemon"),
		now:          opts.Now,
		pollInterval: opts.PollInterval,
		overdueAfter: opts.OverdueAfter,
		status:       opts.Status,
		registry:     opts.Registry,
		metrics:      NewMetrics(opts.Registry),
		signalChan:   opts.SignalChan,
		notified:     make(map[string]notifiedEntry),
	}
	if disp, ok := opts.Sink.(*notify.Dispatcher); ok {
		d.dispatcher = disp
		registerDispatcher(opts.Registry, disp)
	}
	return d, nil
}

// State returns the current loop state.
func (d *Daemon) State() State { return State(d.state.Load()) }

func (d *Daemon) setState(s State) { d.state.Store(int32(s)) }

// Cycle runs one poll at now. A failure to load the document is returned
// and leaves the notified set untouched; the next cycle retries.
func (d *Daemon) Cycle(ctx context.Context, now time.Time) (CycleReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.setState(StateIdle)

	start := time.Now()
	defer func() { d.metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()
	d.metrics.Cycles.Inc()
	d.cycles++

	d.setState(StatePolling)
	report := CycleReport{At: now}

	if !d.hasLastDay || !schedule.SameDay(d.lastDay, now) {
		if d.hasLastDay {
			d.logger.Info("day changed, clearing reminders", zap.Int("cleared", len(d.notified)))
		}
		clear(d.notified)
		d.lastDay = now
		d.hasLastDay = true
		report.Reset = true
		d.metrics.DayResets.Inc()
	}

	doc, err := store.LoadOrEmpty(ctx, d.store)
	if err != nil {
		d.metrics.CycleErrors.Inc()
		report.Error = err.Error()
		d.lastReport = report
		return report, fmt.Errorf("load medications: %w", err)
	}

	active := make(map[string]bool, len(doc.Medications))
	scheduled := 0
	for _, m := range doc.Medications {
		active[m.Name] = true
		if m.IsPRN() {
			continue
		}
		scheduled++
		report.Checked++

		if entry, ok := d.notified[m.Name]; ok {
			if sameInstant(entry.lastTaken, m.LastTaken) {
				m.Notified = true
			} else {
				// a dose was taken or undone since the reminder
				delete(d.notified, m.Name)
			}
		}

		if !m.IsDue(now) {
			continue
		}
		report.Due++
		if m.Notified {
			continue
		}

		d.setState(StateNotifying)
		n := d.reminder(m, now)
		if err := d.sink.Notify(ctx, n); err != nil {
			d.metrics.ReminderErrors.Inc()
			d.logger.Warn("reminder delivery failed", zap.String("medication", m.Name), zap.Error(err))
		}
		d.metrics.Reminders.WithLabelValues(n.Urgency.String()).Inc()
		d.notified[m.Name] = notifiedEntry{lastTaken: copyTime(m.LastTaken), at: now}
		m.Notified = true
		report.Notified++
		d.logger.Info("reminder sent",
			zap.String("medication", m.Name),
			zap.String("dose", m.Dose),
			zap.Stringer("urgency", n.Urgency))
	}

	for name := range d.notified {
		if !active[name] {
			delete(d.notified, name)
		}
	}

	d.metrics.ActiveScheduled.Set(float64(scheduled))
	d.metrics.Due.Set(float64(report.Due))
	d.metrics.LastCycle.Set(float64(now.Unix()))
	d.lastReport = report
	d.logger.Debug("cycle finished",
		zap.Int("checked", report.Checked),
		zap.Int("due", report.Due),
		zap.Int("notified", report.Notified))
	return report, nil
}

func (d *Daemon) reminder(m *medication.Medication, now time.Time) notify.Notification {
	n := notify.Notification{
		Title: ReminderTitle,
		Body:  fmt.Sprintf("Time to take: %s (%s)\nScheduled for: %s", m.Name, m.Dose, m.ScheduledTime),
	}
	if now.Sub(m.ScheduledTime.On(now)) > d.overdueAfter {
		n.Urgency = notify.UrgencyCritical
	}
	return n
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Notified returns the names reminded since the last reset, sorted.
func (d *Daemon) Notified() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.notified))
	for name := range d.notified {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastReport returns the most recent cycle report.
func (d *Daemon) LastReport() CycleReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReport
}

func (d *Daemon) runCycle(ctx context.Context) {
	if _, err := d.Cycle(ctx, d.now()); err != nil {
		d.logger.Warn("cycle failed, retrying next poll", zap.Error(err))
	}
}

// Run polls until ctx is cancelled or SIGINT/SIGTERM arrives. The first cycle
// runs immediately. On stop it waits for an in-flight cycle and drains queued
// notifications.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.dispatcher != nil {
		d.dispatcher.Start(ctx)
	}

	var srv *http.Server
	if d.status.Enabled {
		srv = &http.Server{
			Addr:              d.status.Addr(),
			Handler:           d.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			d.logger.Info("status server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	clog := cronLogger{d.logger.Named("cron").Sugar()}
	c := rcron.New(
		rcron.WithLogger(clog),
		rcron.WithChain(rcron.SkipIfStillRunning(clog)),
	)
	every := "@every " + d.pollInterval.String()
	if _, err := c.AddFunc(every, func() { d.runCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule poll %q: %w", every, err)
	}

	d.logger.Info("daemon started", zap.Duration("poll_interval", d.pollInterval))
	d.runCycle(ctx)
	c.Start()

	// Use injected signal channel for testing, or create default
	sigCh := d.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		d.logger.Info("signal received, shutting down", zap.Stringer("signal", sig))
	}

	return d.shutdown(c, srv)
}

func (d *Daemon) shutdown(c *rcron.Cron, srv *http.Server) error {
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		d.logger.Warn("stop timeout waiting for running cycle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop status server: %w", err))
		}
	}
	if d.dispatcher != nil {
		if err := d.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	d.logger.Info("daemon stopped")
	return errors.Join(errs...)
}

// cronLogger routes robfig/cron's logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
