// Package harness starts an adapter module against a mock host and reports
// how it ended.
//
// A start goes through four steps. Building seeds a fresh store with the
// fixture objects and the instance object. Loading loads the module with the
// mock host installed under the host dependency specifier and process.exit
// replaced by a throwing stand-in. Invoking calls the compact-mode
// initializer, if any, then the ready handler, and waits for a returned
// promise. Classified turns a thrown process exit or terminate request into
// an Outcome; every other exception is returned unchanged.
//
//	h := harness.New(host, harness.Options{Name: "hue", AdapterConfig: native})
//	outcome, err := h.StartAdapter(ctx, "main.js")
//
// WithTracer reports each step as a span under one adapter.start span.
//
// After a start, SendMessage, TriggerStateChange, TriggerObjectChange and
// Unload drive the recorded handlers.
package harness
