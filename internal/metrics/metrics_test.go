package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFit(true, 12, 30*time.Millisecond)
	m.ObserveFit(false, 0, time.Millisecond)
	m.ObserveSimulation(true, time.Millisecond)
	m.ObserveSimulation(false, time.Millisecond)
	m.ObserveSimulation(false, time.Millisecond)
	m.ObserveCache(true)
	m.JobState("", "running")
	m.JobState("running", "succeeded")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fits.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fits.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.simulations.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobs.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("succeeded")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFit(true, 1, time.Second)
		m.ObserveSimulation(false, time.Second)
		m.ObserveCache(false)
		m.JobState("a", "b")
	})
}
