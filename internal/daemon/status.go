package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/notify"
)

// Status is the JSON body of GET /status.
type Status struct {
	State        string        `json:"state"`
	PollInterval string        `json:"pollInterval"`
	Cycles       int           `json:"cycles"`
	LastCycle    *CycleReport  `json:"lastCycle,omitempty"`
	Notified     []string      `json:"notified"`
	Notify       *notify.Stats `json:"notify,omitempty"`
}

// Snapshot returns the daemon's current status.
func (d *Daemon) Snapshot() Status {
	s := Status{
		State:        d.State().String(),
		PollInterval: d.pollInterval.String(),
		Notified:     d.Notified(),
	}
	d.mu.Lock()
	s.Cycles = d.cycles
	if d.cycles > 0 {
		r := d.lastReport
		s.LastCycle = &r
	}
	d.mu.Unlock()
	if d.dispatcher != nil {
		st := d.dispatcher.Stats()
		s.Notify = &st
	}
	return s
}

// Router serves /healthz, /status and /metrics.
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Snapshot()); err != nil {
			d.logger.Warn("encode status", zap.Error(err))
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return r
}
