// Package metrics collects the engine's Prometheus instrumentation behind
// nil-safe helpers so components can run uninstrumented in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the registry and the engine's collectors.
type Metrics struct {
	reg *prometheus.Registry

	providerRequests *prometheus.CounterVec
	cacheEvents      *prometheus.CounterVec
	pollCycles       *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	notifications    *prometheus.CounterVec
	jobs             *prometheus.CounterVec
	sweeps           *prometheus.CounterVec
	tripsActive      prometheus.Gauge
}

// New builds a registry with the engine collectors plus the standard Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_provider_requests_total",
			Help: "Flight data provider requests by HTTP status (0 = transport error).",
		}, []string{"code"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_snapshot_cache_events_total",
			Help: "Snapshot cache lookups by result.",
		}, []string{"result"}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_poll_cycles_total",
			Help: "Poll cycles by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripwatch_poll_cycle_seconds",
			Help:    "Poll cycle duration.",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_notifications_total",
			Help: "Notification pipeline outcomes by type and state.",
		}, []string{"type", "state"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_scheduled_jobs_total",
			Help: "Durable job executions by kind and result.",
		}, []string{"kind", "result"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_sweep_runs_total",
			Help: "Scheduler sweep runs by sweep name.",
		}, []string{"sweep"}),
		tripsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripwatch_trips_active",
			Help: "Active trips seen by the last poll scan.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.providerRequests,
		m.cacheEvents,
		m.pollCycles,
		m.pollDuration,
		m.notifications,
		m.jobs,
		m.sweeps,
		m.tripsActive,
	)
	return m
}

// Handler serves the registry for the ops endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ProviderRequest(status int) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) CacheEvent(result string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) PollCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(result).Inc()
	m.pollDuration.Observe(d.Seconds())
}

func (m *Metrics) Notification(typ, state string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(typ, state).Inc()
}

func (m *Metrics) Job(kind, result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Sweep(name string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(name).Inc()
}

func (m *Metrics) SetActiveTrips(n int) {
	if m == nil {
		return
	}
	m.tripsActive.Set(float64(n))
}
