/*
Package tracing times the phases of an adapter start.

# Overview

A start is one trace. Each phase (build, load, invoke, settle) is a span
whose parent is the span carried by the context it was started from, so a
debug log of finished spans reads as a tree.

# Usage

	tracer := tracing.New("harness", logger, 64)

	span, ctx := tracer.StartSpan(ctx, "load")
	span.SetTag("file", file)
	err := load(ctx)
	span.SetError(err)
	tracer.Finish(span)

A nil *Tracer is valid: spans are still created and timed but not reported.
*/
package tracing
