package daemon

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarlinkco/pharm/internal/notify"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	Cycles          prometheus.Counter
	CycleErrors     prometheus.Counter
	CycleDuration   prometheus.Histogram
	Reminders       *prometheus.CounterVec
	ReminderErrors  prometheus.Counter
	DayResets       prometheus.Counter
	ActiveScheduled prometheus.Gauge
	Due             prometheus.Gauge
	LastCycle       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharm_daemon_cycles_total",
			Help: "Total poll cycles run",
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharm_daemon_cycle_errors_total",
			Help: "Poll cycles that could not load the medication document",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pharm_daemon_cycle_duration_seconds",
			Help:    "Poll cycle duration",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharm_daemon_reminders_total",
			Help: "Reminders issued by urgency",
		}, []string{"urgency"}),
		ReminderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharm_daemon_reminder_errors_total",
			Help: "Reminders the sink reported as failed",
		}),
		DayResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharm_daemon_day_resets_total",
			Help: "Times the notified set was cleared at a day boundary or startup",
		}),
		ActiveScheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pharm_daemon_scheduled_medications",
			Help: "Active medications with a schedule at the last cycle",
		}),
		Due: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pharm_daemon_due_medications",
			Help: "Medications due at the last cycle",
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pharm_daemon_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}),
	}

	reg.MustRegister(
		m.Cycles,
		m.CycleErrors,
		m.CycleDuration,
		m.Reminders,
		m.ReminderErrors,
		m.DayResets,
		m.ActiveScheduled,
		m.Due,
		m.LastCycle,
	)
	return m
}

// registerDispatcher exposes the dispatcher's counters.
func registerDispatcher(reg prometheus.Registerer, d *notify.Dispatcher) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pharm_notify_sent_total",
			Help: "Notifications delivered",
		}, func() float64 { return float64(d.Stats().Sent) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pharm_notify_failed_total",
			Help: "Notifications the sinks rejected",
		}, func() float64 { return float64(d.Stats().Failed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pharm_notify_dropped_total",
			Help: "Notifications dropped because the queue was full or closed",
		}, func() float64 { return float64(d.Stats().Dropped) }),
	)
}
