package simulate

import (
	"time"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
)

// Instrumented records the outcome and duration of every call.
type Instrumented struct {
	next    Simulator
	metrics *metrics.Metrics
}

// NewInstrumented wraps next with metrics.
func NewInstrumented(next Simulator, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

// Simulate implements Simulator.
func (s *Instrumented) Simulate(q []float64, st layer.Stack) ([]float64, error) {
	start := time.Now()
	curve, err := s.next.Simulate(q, st)
	s.metrics.ObserveSimulation(err == nil, time.Since(start))
	return curve, err
}
