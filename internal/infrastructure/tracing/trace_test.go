package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSpanParenting(t *testing.T) {
	tracer := New("harness", nil, 10)

	root, ctx := tracer.StartSpan(context.Background(), "start")
	child, childCtx := tracer.StartSpan(ctx, "load")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Equal(t, root.TraceID, GetTraceID(childCtx))
	assert.Equal(t, "harness", child.Service)

	other, _ := tracer.StartSpan(context.Background(), "start")
	assert.NotEqual(t, root.TraceID, other.TraceID)
}

func TestFinishLogsAndRetains(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("harness", zap.New(core), 2)

	for _, name := range []string{"build", "load", "invoke"} {
		span, _ := tracer.StartSpan(context.Background(), name)
		span.SetTag("file", "main.js")
		if name == "invoke" {
			span.SetError(errors.New("boom"))
		}
		tracer.Finish(span)
	}

	finished := tracer.Finished()
	require.Len(t, finished, 2)
	assert.Equal(t, "load", finished[0].Name)
	assert.Equal(t, "invoke", finished[1].Name)
	assert.GreaterOrEqual(t, int64(finished[1].Duration), int64(0))

	assert.Equal(t, 2, logs.FilterMessage("span completed").Len())
	failed := logs.FilterMessage("span completed with error").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "main.js", failed[0].ContextMap()["file"])
	assert.Equal(t, "invoke", failed[0].ContextMap()["operation"])
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	span, ctx := tracer.StartSpan(context.Background(), "start")
	require.NotNil(t, span)
	assert.Equal(t, span.SpanID, GetSpanID(ctx))

	tracer.Finish(span)
	assert.False(t, span.EndTime.IsZero())
	assert.Nil(t, tracer.Finished())
}

func TestFormatTrace(t *testing.T) {
	assert.Equal(t, "[trace:t1 span:s1]", FormatTrace("t1", "s1"))
}
