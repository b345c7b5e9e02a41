package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer wraps the OpenTelemetry tracer with frame and phase span helpers.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer whose spans carry the service name and
// version. Every span is sampled; the exporter only decides where finished
// spans go.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg.Endpoint)
	case "stdout":
		exporter, err = createStdoutExporter()
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
	}, nil
}

// createOTLPExporter dials the collector at endpoint. A URL picks TLS by its
// scheme; a bare host:port is a local collector and is dialed in the clear.
func createOTLPExporter(endpoint string) (sdktrace.SpanExporter, error) {
	var opts []otlptracegrpc.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(endpoint))
	} else {
		opts = append(opts,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()),
		)
	}
	return otlptracegrpc.New(context.Background(), opts...)
}

// createStdoutExporter creates a stdout exporter for debugging.
func createStdoutExporter() (sdktrace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
	)
}

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartSpan is a convenience method that starts a span with common attributes.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
}

// Tracer returns the underlying trace.Tracer, suitable for engine.WithTracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// StartPipelineSpan starts a span covering every frame of a pipeline run.
func (t *Tracer) StartPipelineSpan(ctx context.Context, pipeline string, frames int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "pipeline.run",
		AttrPipeline.String(pipeline),
		AttrFrameCount.Int(frames),
		attribute.String("span.kind", "pipeline"),
	)
}

// StartFrameSpan starts a span for a single frame.
func (t *Tracer) StartFrameSpan(ctx context.Context, frameID string, sequence uint64) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "frame",
		AttrFrameID.String(frameID),
		AttrFrameSequence.Int64(int64(sequence)),
		attribute.String("span.kind", "frame"),
	)
}

// StartPhaseSpan starts a span for one phase of a frame.
func (t *Tracer) StartPhaseSpan(ctx context.Context, frameID, phase string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "phase."+phase,
		AttrFrameID.String(frameID),
		AttrPhase.String(phase),
		attribute.String("span.kind", "phase"),
	)
}

// RecordError records an error on the current span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetAttributes sets multiple attributes on a span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// AddEvent adds an event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AddFrameEvent adds a frame-related event to the span.
func AddFrameEvent(span trace.Span, frameID, eventType, message string) {
	span.AddEvent(eventType, trace.WithAttributes(
		AttrFrameID.String(frameID),
		attribute.String("event.message", message),
		attribute.String("event.category", "frame"),
	))
}

// Shutdown gracefully shuts down the tracer, flushing any pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush forces all pending spans to be exported immediately.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceID returns the trace ID of the current span in the context.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// SpanID returns the span ID of the current span in the context.
func SpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}

// Common attribute keys for hydra tracing.
var (
	AttrPipeline   = attribute.Key("pipeline.name")
	AttrFrameCount = attribute.Key("pipeline.frames")

	AttrFrameID       = attribute.Key("frame.id")
	AttrFrameSequence = attribute.Key("frame.sequence")
	AttrPhase         = attribute.Key("frame.phase")
	AttrTaskPath      = attribute.Key("task.path")

	AttrErrorClass   = attribute.Key("error.class")
	AttrErrorCode    = attribute.Key("error.code")
	AttrErrorMessage = attribute.Key("error.message")
)
