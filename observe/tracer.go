package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrComponent = "instance.component"
	AttrCache     = "instance.cache"
	AttrKey       = "instance.key"
	AttrError     = "instance.error"
	AttrOutcome   = "instance.outcome"
)

// Tracer wraps OpenTelemetry tracing with per-operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span named meta.SpanName(op) for the given key.
	StartSpan(ctx context.Context, op string, meta ComponentMeta, key string) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, op string, meta ComponentMeta, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrComponent, meta.Component),
		attribute.Bool(AttrError, false),
	}
	if meta.Cache != "" {
		attrs = append(attrs, attribute.String(AttrCache, meta.Cache))
	}
	if key != "" {
		attrs = append(attrs, attribute.String(AttrKey, key))
	}

	return t.tracer.Start(ctx, meta.SpanName(op),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool(AttrError, true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, op string, meta ComponentMeta, _ string) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName(op))
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}

// TracerOrNop returns t, or a no-op tracer when t is nil.
func TracerOrNop(t Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return t
}
