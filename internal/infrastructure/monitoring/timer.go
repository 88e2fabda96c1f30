package monitoring

import "time"

// Timer measures one load cycle.
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts a load cycle timer and marks the cycle active.
func NewTimer(metrics *Metrics) *Timer {
	if metrics != nil {
		metrics.CyclesActive.Inc()
	}
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
	}
}

// Stop records the cycle with the given status and returns its duration.
func (t *Timer) Stop(status string) time.Duration {
	duration := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.CyclesActive.Dec()
		t.metrics.RecordLoadCycle(status, duration)
	}
	return duration
}
