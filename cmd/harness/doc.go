// Package main is the command-line runner of the adapter harness.
//
// It starts each given adapter main file against a mock host, unloads the
// adapters that came up, and prints the classified outcomes as JSON.
//
// Configuration:
//   - Environment variables (HARNESS_*)
//   - CLI flags (override env vars)
//
// Usage:
//
//	harness -name hue -config '{"host":"bridge.local"}' -fixtures ./test/objects main.js
//
//	# compact mode, several adapters at once
//	harness -compact -parallel 8 a/main.js b/main.js
//
// The process exits with 1 when any adapter failed to start, otherwise with
// the first non-zero classified exit code, and 0 when all came up.
package main
