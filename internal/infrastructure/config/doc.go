// Package config provides 12-factor configuration for the adapter harness.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables.
//
// Configuration Sections:
//   - Adapter: adapter name, instance number, compact mode, host dependency id
//   - Run: fixture directory, optional deadline, change forwarding
//   - Logging: log level and output format
//   - Metrics: prometheus collection toggle
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("testing %s.%d\n", cfg.Adapter.Name, cfg.Adapter.Instance)
//
// Environment Variables:
//   - HARNESS_ADAPTER_NAME, HARNESS_INSTANCE, HARNESS_COMPACT, HARNESS_HOST_DEPENDENCY
//   - HARNESS_FIXTURES, HARNESS_TIMEOUT, HARNESS_FORWARD_CHANGES
//   - HARNESS_LOG_LEVEL, HARNESS_LOG_DEV, HARNESS_METRICS
package config
