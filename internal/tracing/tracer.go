package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/platformbuilds/workcell-kpi"

// TracerProvider manages the lifecycle of the OpenTelemetry tracer
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTracerProvider creates an OTLP/gRPC exporting tracer provider and
// installs it globally. sampleRatio outside (0,1) samples everything.
func NewTracerProvider(ctx context.Context, serviceName, serviceVersion, otlpEndpoint string, sampleRatio float64) (*TracerProvider, error) {
	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("workcell"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return install(sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(sampleRatio)),
	)), nil
}

func install(tp *sdktrace.TracerProvider) *TracerProvider {
	otel.SetTracerProvider(tp)
	return &TracerProvider{tp: tp}
}

func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartStoreSpan starts a span around one store round trip. store is "sql"
// or "tsdb"; query is the logical query name, never the raw text.
func StartStoreSpan(ctx context.Context, store, query string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String("store.kind", store),
		attribute.String("store.query", query),
		attribute.String("component", "windowed-fetcher"),
	}
	return tracer().Start(ctx, store+"."+query, trace.WithAttributes(append(base, attrs...)...))
}

// StartOperationSpan starts a span for one KPI operation (dashboard,
// analytics, timeseries, trend, devices).
func StartOperationSpan(ctx context.Context, operation, entity string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "kpi."+operation,
		trace.WithAttributes(
			attribute.String("kpi.operation", operation),
			attribute.String("kpi.entity", entity),
			attribute.String("component", "kpi-engine"),
		),
	)
}

// RecordQueryMetrics records row count and latency, marking the span failed on err.
func RecordQueryMetrics(span trace.Span, duration time.Duration, rows int, err error) {
	span.SetAttributes(
		attribute.Int64("query.duration_ms", duration.Milliseconds()),
		attribute.Int("query.record_count", rows),
		attribute.Bool("query.success", err == nil),
	)
	if err != nil {
		RecordError(span, err)
	}
}

// RecordError records an error on a span
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
	span.RecordError(err)
}
