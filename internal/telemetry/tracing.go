package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracingOptions configures span export.
type TracingOptions struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	// SampleRatio in (0,1]; zero means sample everything.
	SampleRatio float64
}

// Tracing owns the SDK tracer provider installed as the global provider.
type Tracing struct {
	tp *sdktrace.TracerProvider
}

// SetupTracing installs an OTLP/gRPC exporting tracer provider. When disabled
// the global no-op provider stays in place and Shutdown is a no-op.
func SetupTracing(ctx context.Context, opts TracingOptions) (*Tracing, error) {
	if !opts.Enabled {
		return &Tracing{}, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "docchat"
	}
	endpoint := opts.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("service.namespace", namespace),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("resource init: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp init: %w", err)
	}
	return install(sdktrace.WithBatcher(exporter), res, opts.SampleRatio), nil
}

func install(processor sdktrace.TracerProviderOption, res *resource.Resource, ratio float64) *Tracing {
	sampler := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	tp := sdktrace.NewTracerProvider(processor, sdktrace.WithResource(res), sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(tp)
	return &Tracing{tp: tp}
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}
	return nil
}
