// Package tracing installs the OpenTelemetry tracer provider shared by every
// blockminds binary.
package tracing

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "blockminds"

// Version is reported as the service version on every span.
var Version = "dev"

type options struct {
	enabled     bool
	endpoint    string
	insecure    bool
	sampleRatio float64
	environment string
}

func optionsFromEnv() options {
	opts := options{
		enabled:     os.Getenv("TRACING_ENABLED") != "false",
		endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") != "false",
		sampleRatio: 1,
		environment: os.Getenv("APP_ENVIRONMENT"),
	}
	if opts.endpoint == "" {
		opts.endpoint = "localhost:4317"
	}
	if raw := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
			opts.sampleRatio = v
		}
	}
	if opts.environment == "" {
		opts.environment = "development"
	}
	return opts
}

var newTraceExporter = func(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, grpcOpts...)
}

// InitTracer installs the global tracer provider and propagators.
// TRACING_ENABLED=false keeps spans in process without an exporter.
func InitTracer(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
	opts := optionsFromEnv()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
			semconv.DeploymentEnvironment(opts.environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.sampleRatio))),
	}
	if opts.enabled {
		exporter, err := newTraceExporter(ctx, opts.endpoint, opts.insecure)
		if err != nil {
			return nil, nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, tp.Tracer(serviceName), nil
}
