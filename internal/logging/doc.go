// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Output goes to stderr by default so that runner output on stdout stays
// machine readable.
//
// Adapter log calls (log.silly ... log.error) and console output from
// sandboxed code are forwarded through a child logger carrying the adapter
// namespace; see ForAdapter and AdapterLevel.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.ForAdapter("test.0").Info("ready")
package logging
