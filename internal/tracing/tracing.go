// Package tracing wraps a minimal OpenTelemetry span pipeline around
// agent turns: one span per inbound message, tagged with its channel
// and session key, exported to stdout. No OTLP network exporter is
// wired — this core assumes no external collector.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

const tracerName = "goclaw/orchestration"

// Collector owns the SDK TracerProvider and exposes StartTurn and
// StartToolCall for the orchestration loop.
type Collector struct {
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewCollector builds a Collector exporting spans to stdout.
func NewCollector() (*Collector, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "tracing.NewCollector", err)
	}
	provider := trace.NewTracerProvider(trace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return &Collector{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
	}, nil
}

// Stop flushes and shuts down the exporter pipeline.
func (c *Collector) Stop(ctx context.Context) error {
	if err := c.provider.Shutdown(ctx); err != nil {
		return corekind.Wrap(corekind.Io, "tracing.Stop", err)
	}
	return nil
}

// StartTurn starts a span covering one orchestration turn: inbound
// consume through outbound publish. Callers must call the returned
// end func exactly once.
func (c *Collector) StartTurn(ctx context.Context, channel, sessionKey string) (context.Context, func()) {
	ctx, span := c.tracer.Start(ctx, "agent.turn",
		oteltrace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("session_key", sessionKey),
		),
	)
	return ctx, func() { span.End() }
}

// StartToolCall starts a child span for a single tool dispatch.
func (c *Collector) StartToolCall(ctx context.Context, toolName string) (context.Context, func(err error)) {
	ctx, span := c.tracer.Start(ctx, "agent.tool_call",
		oteltrace.WithAttributes(attribute.String("tool", toolName)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
