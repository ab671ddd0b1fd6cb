package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genescore/domain/scoring"
)

const namespace = "genescore"

// Metrics collects scoring progress on its own registry and implements
// engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// setsScored counts finished sets. Labels: mode (none, exhaustive, random)
	setsScored   *prometheus.CounterVec
	setsFailed   prometheus.Counter
	permutations prometheus.Counter
	cellsFrozen  prometheus.Counter
	cellsScored  prometheus.Counter

	// scoreDuration measures wall time per set. Labels: mode
	scoreDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		setsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sets_scored_total",
			Help:      "Gene sets scored, by sampling mode",
		}, []string{"mode"}),
		setsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sets_failed_total",
			Help:      "Gene sets that could not be scored",
		}),
		permutations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "permutations_total",
			Help:      "Null gene subsets evaluated",
		}),
		cellsFrozen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cells_frozen_total",
			Help:      "Cells dropped from further permutations by early stopping",
		}),
		cellsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cells_scored_total",
			Help:      "Cell rows produced across all sets",
		}),
		scoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "set_duration_seconds",
			Help:      "Time to score one gene set in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"mode"}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetScored records a finished set
func (m *Metrics) SetScored(res *scoring.SetResult) {
	mode := string(res.Mode)
	m.setsScored.WithLabelValues(mode).Inc()
	m.cellsFrozen.Add(float64(res.Frozen))
	m.cellsScored.Add(float64(len(res.Cells)))
	m.scoreDuration.WithLabelValues(mode).Observe(res.Duration.Seconds())
}

// SetFailed records a set that failed
func (m *Metrics) SetFailed(string, error) { m.setsFailed.Inc() }

// Permutations records n evaluated null subsets
func (m *Metrics) Permutations(n int) { m.permutations.Add(float64(n)) }
