package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome kinds recorded by RecordOutcome.
const (
	OutcomeSuccess    = "success"
	OutcomeExited     = "exited"
	OutcomeTerminated = "terminated"
	OutcomeFailed     = "failed"
)

// Metrics holds all Prometheus metrics of the harness.
//
// Every Metrics owns its registry, so several harnesses in one test binary
// never collide on registration. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Load cycle metrics
	LoadCycles   *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	CyclesActive prometheus.Gauge

	// Lifecycle metrics
	Outcomes *prometheus.CounterVec

	// Mock surface metrics
	StubCalls *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LoadCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_load_cycles_total",
				Help: "Total number of module load cycles",
			},
			[]string{"status"},
		),
		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harness_load_duration_seconds",
				Help:    "Module load cycle duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		CyclesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_load_cycles_active",
				Help: "Number of load cycles in flight",
			},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_outcomes_total",
				Help: "Classified adapter start outcomes",
			},
			[]string{"kind"},
		),
		StubCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_stub_calls_total",
				Help: "Calls made by the adapter into the mock host surface",
			},
			[]string{"method"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordLoadCycle records a finished load cycle.
func (m *Metrics) RecordLoadCycle(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LoadCycles.WithLabelValues(status).Inc()
	m.LoadDuration.Observe(duration.Seconds())
}

// RecordOutcome records a classified start outcome.
func (m *Metrics) RecordOutcome(kind string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(kind).Inc()
}

// StubCalled counts one call into the mock host surface.
func (m *Metrics) StubCalled(method string) {
	if m == nil {
		return
	}
	m.StubCalls.WithLabelValues(method).Inc()
}
