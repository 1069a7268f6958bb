// Package tracing provides OpenTelemetry span instrumentation for the
// pipeline's stages, grounded on the teacher pack's telemetry.Provider
// (ManuGH-xg2g's internal/telemetry/tracer.go), adapted from per-HTTP-request
// spans to per-pipeline-stage spans.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether and where spans are exported.
type Config struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string // OTLP gRPC collector endpoint, e.g. "localhost:4317"
	SamplingRate float64
}

// Provider owns the process-wide TracerProvider lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs either a batching OTLP/gRPC exporter or a noop
// tracer, depending on cfg.Enabled (spec ambient stack: tracing is not
// spec-mandated, but the teacher never ships an ambient stack without it).
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	if cfg.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SamplingRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{tp: tp}, nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

var tracer = otel.Tracer("retention-engine/pipeline")

// StartStage opens a span for one pipeline step, tagged with the job and
// step name so traces line up with the PipelineStepState rows the Store
// persists.
func StartStage(ctx context.Context, jobID string, step string) (context.Context, trace.Span) {
	return tracer.Start(ctx, step, trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("pipeline.step", step),
	))
}

// EndStage records the outcome and closes the span.
func EndStage(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("pipeline.failed", true))
	}
	span.End()
}
