// Package metrics defines the Prometheus collectors for fits and simulations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xrr"

// Metrics groups the collectors. All methods are safe on a nil receiver so
// callers can leave metrics unset.
type Metrics struct {
	fits        *prometheus.CounterVec
	fitDuration prometheus.Histogram
	iterations  prometheus.Histogram
	simulations *prometheus.CounterVec
	simDuration prometheus.Histogram
	cacheHits   *prometheus.CounterVec
	jobs        *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Completed fits by outcome.",
		}, []string{"outcome"}),
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of a fit.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_iterations",
			Help:      "Accepted solver steps per fit.",
			Buckets:   prometheus.LinearBuckets(0, 10, 20),
		}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Forward simulations by outcome.",
		}, []string{"outcome"}),
		simDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of a forward simulation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_cache_lookups_total",
			Help:      "Simulation cache lookups by result.",
		}, []string{"result"}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Fit jobs by state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.fits, m.fitDuration, m.iterations, m.simulations, m.simDuration, m.cacheHits, m.jobs)
	}
	return m
}

// ObserveFit records one finished fit.
func (m *Metrics) ObserveFit(success bool, iterations int, d time.Duration) {
	if m == nil {
		return
	}
	m.fits.WithLabelValues(outcome(success)).Inc()
	m.fitDuration.Observe(d.Seconds())
	m.iterations.Observe(float64(iterations))
}

// ObserveSimulation records one forward simulation.
func (m *Metrics) ObserveSimulation(success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(outcome(success)).Inc()
	m.simDuration.Observe(d.Seconds())
}

// ObserveCache records a simulation cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.WithLabelValues("hit").Inc()
	} else {
		m.cacheHits.WithLabelValues("miss").Inc()
	}
}

// JobState moves one job between state gauges. Empty names are skipped.
func (m *Metrics) JobState(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.jobs.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.jobs.WithLabelValues(to).Inc()
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
