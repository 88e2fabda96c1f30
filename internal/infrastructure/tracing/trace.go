package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TraceID identifies one adapter start
type TraceID string

// SpanID identifies one phase of a start
type SpanID string

// Span is a single timed phase
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error

	mu   sync.Mutex
	tags map[string]string
}

// Tracer records spans and reports finished ones to its logger
type Tracer struct {
	service string
	logger  *zap.Logger

	mu       sync.Mutex
	finished []*Span
	keep     int
}

// New creates a tracer. Finished spans are logged at debug level and the
// last keep of them are retained for inspection.
func New(service string, logger *zap.Logger, keep int) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		service: service,
		logger:  logger,
		keep:    keep,
	}
}

// StartSpan creates a span, a child of the span carried by ctx if any
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(uuid.NewString())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(uuid.NewString()),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		StartTime: time.Now(),
		tags:      make(map[string]string),
	}
	if t != nil {
		span.Service = t.service
	}

	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, spanIDKey, span.SpanID)
	return span, newCtx
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = value
}

// Tags returns a copy of the span tags
func (s *Span) Tags() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}
	return out
}

// SetError records the error the phase ended with
func (s *Span) SetError(err error) {
	s.Error = err
}

// Finish ends the span and hands it to the tracer
func (t *Tracer) Finish(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if t == nil {
		return
	}

	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags() {
		fields = append(fields, zap.String(k, v))
	}
	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Debug("span completed with error", fields...)
	} else {
		t.logger.Debug("span completed", fields...)
	}

	if t.keep <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = append(t.finished, span)
	if over := len(t.finished) - t.keep; over > 0 {
		t.finished = append([]*Span(nil), t.finished[over:]...)
	}
}

// Finished returns the retained spans, oldest first
func (t *Tracer) Finished() []*Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Span(nil), t.finished...)
}

// Context keys for trace propagation
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return spanID
	}
	return ""
}

// FormatTrace returns a formatted trace string for logging
func FormatTrace(traceID TraceID, spanID SpanID) string {
	return fmt.Sprintf("[trace:%s span:%s]", traceID, spanID)
}
