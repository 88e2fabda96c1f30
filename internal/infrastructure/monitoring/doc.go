/*
Package monitoring provides metrics collection for the adapter harness.

# Overview

Metrics are kept on a private Prometheus registry per collector rather than
the global default registry, so independent harnesses can coexist.

# Metrics

- harness_load_cycles_total{status}: finished load cycles (ok, error)
- harness_load_duration_seconds: load cycle latency
- harness_load_cycles_active: cycles in flight
- harness_outcomes_total{kind}: success, exited, terminated, failed
- harness_stub_calls_total{method}: calls into the mock host surface

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics)
	// ... load the adapter ...
	timer.Stop("ok")

	metrics.RecordOutcome(monitoring.OutcomeTerminated)

A nil *Metrics is valid and records nothing.
*/
package monitoring
