// Package metrics exposes run counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steveyegge/casalert/internal/types"
)

const namespace = "casalert"

// Duplicate phases
const (
	PhaseExact = "exact"
	PhaseFuzzy = "fuzzy"
	PhaseKnown = "known"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	AlertsScraped      *prometheus.CounterVec
	DuplicatesRemoved  *prometheus.CounterVec
	AlertsAdded        prometheus.Counter
	Runs               *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	LastSuccessSeconds prometheus.Gauge
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AlertsScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_scraped_total",
			Help:      "Alerts collected from each source before deduplication",
		}, []string{"source"}),
		DuplicatesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Alerts dropped as duplicates, by phase",
		}, []string{"phase"}),
		AlertsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_added_total",
			Help:      "Alerts appended to the store",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by final status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of each run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		LastSuccessSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that did not fail",
		}),
	}

	m.registry.MustRegister(
		m.AlertsScraped,
		m.DuplicatesRemoved,
		m.AlertsAdded,
		m.Runs,
		m.RunDuration,
		m.LastSuccessSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(run *types.ScrapeRun) {
	if m == nil || run == nil {
		return
	}
	for source, n := range run.Scraped {
		m.AlertsScraped.WithLabelValues(string(source)).Add(float64(n))
	}
	m.DuplicatesRemoved.WithLabelValues(PhaseExact).Add(float64(run.ExactDuplicates))
	m.DuplicatesRemoved.WithLabelValues(PhaseFuzzy).Add(float64(run.FuzzyDuplicates))
	m.DuplicatesRemoved.WithLabelValues(PhaseKnown).Add(float64(run.KnownSkipped))
	m.AlertsAdded.Add(float64(run.Added))
	m.Runs.WithLabelValues(string(run.Status)).Inc()

	if run.FinishedAt != nil {
		m.RunDuration.Observe(run.Duration().Seconds())
		if run.Status != types.RunStatusFailed {
			m.LastSuccessSeconds.Set(float64(run.FinishedAt.UnixNano()) / float64(time.Second))
		}
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
