package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordOutcome(OutcomeTerminated)
	m.RecordOutcome(OutcomeTerminated)
	m.RecordOutcome(OutcomeSuccess)
	m.StubCalled("getState")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues(OutcomeTerminated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StubCalls.WithLabelValues("getState")))
}

func TestTimer(t *testing.T) {
	m := NewMetrics()

	timer := NewTimer(m)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesActive))

	d := timer.Stop("ok")
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CyclesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadCycles.WithLabelValues("ok")))

	count, err := testutil.GatherAndCount(m.Registry(), "harness_load_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.StubCalled("setState")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.StubCalls.WithLabelValues("setState")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StubCalls.WithLabelValues("setState")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordOutcome(OutcomeFailed)
		m.StubCalled("getObject")
		m.RecordLoadCycle("error", time.Second)
		NewTimer(m).Stop("error")
	})
	assert.Nil(t, m.Registry())
}
