// Package metrics exposes supervisor activity as Prometheus collectors.
package metrics

import (
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

var phases = []supervise.Phase{
	supervise.PhaseNotStarted,
	supervise.PhaseStarting,
	supervise.PhaseReady,
	supervise.PhaseFailed,
	supervise.PhaseStopped,
}

// Metrics implements supervise.Observer.
type Metrics struct {
	probes     *prometheus.CounterVec
	spawns     prometheus.Counter
	exits      prometheus.Counter
	phase      *prometheus.GaugeVec
	readyDelay prometheus.Histogram

	mu        sync.Mutex
	spawnedAt time.Time
}

var _ supervise.Observer = (*Metrics)(nil)

func New() *Metrics {
	return &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "platformctl",
			Subsystem: "supervisor",
			Name:      "probes_total",
			Help:      "Readiness probes by outcome.",
		}, []string{"outcome"}),
		spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platformctl",
			Subsystem: "supervisor",
			Name:      "spawns_total",
			Help:      "Number of times the backing server was spawned.",
		}),
		exits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platformctl",
			Subsystem: "supervisor",
			Name:      "exits_total",
			Help:      "Number of observed exits of the backing server.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "platformctl",
			Subsystem: "supervisor",
			Name:      "phase",
			Help:      "Current supervisor phase (1 = active).",
		}, []string{"phase"}),
		readyDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "platformctl",
			Subsystem: "supervisor",
			Name:      "ready_seconds",
			Help:      "Time from spawn until the server answered.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

// Register adds the collectors to r. Collectors that are already registered
// are kept.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.probes, m.spawns, m.exits, m.phase, m.readyDelay} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if stderrors.As(err, &are) {
				continue
			}
			return err
		}
	}
	m.setPhase(supervise.PhaseNotStarted)
	return nil
}

func (m *Metrics) Observe(ev supervise.Event) {
	switch ev.Type {
	case supervise.EventProbeAttempt:
		if ev.Probe != nil {
			m.probes.WithLabelValues(string(ev.Probe.Outcome)).Inc()
		}
	case supervise.EventProcessSpawned:
		m.spawns.Inc()
		m.mu.Lock()
		m.spawnedAt = ev.At
		m.mu.Unlock()
	case supervise.EventProcessExited:
		m.exits.Inc()
	case supervise.EventPhaseChanged:
		m.setPhase(ev.Phase)
		if ev.Phase == supervise.PhaseReady {
			m.mu.Lock()
			if !m.spawnedAt.IsZero() {
				m.readyDelay.Observe(ev.At.Sub(m.spawnedAt).Seconds())
				m.spawnedAt = time.Time{}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Metrics) setPhase(p supervise.Phase) {
	for _, ph := range phases {
		v := 0.0
		if ph == p {
			v = 1
		}
		m.phase.WithLabelValues(string(ph)).Set(v)
	}
}

// Handler serves the metrics of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
