package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope of the engine spans.
const TracerName = "github.com/huy-cyno/workflow-builder-poc/workflow"

// Tracing owns the tracer provider handed to the engine. A disabled Tracing
// hands out noop tracers and Shutdown does nothing.
type Tracing struct {
	tp *sdktrace.TracerProvider
}

// NewTracing builds an sdk provider whose finished spans are written to
// logger. Extra span processors (tests use a recorder) are added as given.
func NewTracing(enabled bool, serviceName string, logger *zap.Logger, processors ...sdktrace.SpanProcessor) *Tracing {
	if !enabled {
		return &Tracing{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdktrace.WithBatcher(&logExporter{logger: logger.With(zap.String("component", "tracing"))}),
	}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return &Tracing{tp: sdktrace.NewTracerProvider(opts...)}
}

func (t *Tracing) Enabled() bool {
	return t != nil && t.tp != nil
}

func (t *Tracing) Tracer() trace.Tracer {
	if !t.Enabled() {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return t.tp.Tracer(TracerName)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// logExporter writes one debug line per finished span.
type logExporter struct {
	logger *zap.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("span", fields...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}
