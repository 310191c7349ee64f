// Package tracing adapts OpenTelemetry to the service tracer contract.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"whalewatcher/internal/core"
)

const instrumentationName = "whalewatcher/internal/core"

// Tracer starts one span per case store action.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps a trace provider. The provider is not owned by the Tracer.
func New(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// Start implements core.Tracer.
func (t *Tracer) Start(ctx context.Context, op string) (context.Context, core.TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "whalewatcher."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("whalewatcher.operation", op)))
	return ctx, actionSpan{span: span}
}

type actionSpan struct {
	span trace.Span
}

func (s actionSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// NewStdoutProvider builds a provider that batches spans to w as JSON.
// Callers must Shutdown the provider to flush pending spans.
func NewStdoutProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}
