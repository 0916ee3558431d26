// Package telemetry provides a thin wrapper over the OpenTelemetry tracer,
// spans are ended together with the operation error, see Span.End.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Telemetry interface {
	Tracer() Tracer
}

type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
}

type telemetry struct {
	tracer Tracer
}

type tracer struct {
	tracer trace.Tracer
}

func New(tp trace.TracerProvider, name string) Telemetry {
	return &telemetry{tracer: &tracer{tracer: tp.Tracer(name)}}
}

// NewForProject creates telemetry backed by the global otel tracer provider.
func NewForProject() Telemetry {
	return New(otel.GetTracerProvider(), "github.com/gridrun/gridrun")
}

// NewNop creates no-op telemetry for tests.
func NewNop() Telemetry {
	return New(noop.NewTracerProvider(), "nop")
}

func (t *telemetry) Tracer() Tracer {
	return t.tracer
}

func (t *tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, s := t.tracer.Start(ctx, spanName, opts...)
	return ctx, &span{span: s}
}
