package util

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "shoe-store"

var tracer trace.Tracer

// TracerOptions configures the Jaeger exporter.
type TracerOptions struct {
	Service     string
	Env         string
	Endpoint    string
	SampleRatio float64
}

// InitTracer installs a tracer provider exporting to Jaeger. An empty
// endpoint disables export; spans are still created against a provider
// with no processors so StartSpan keeps working.
func InitTracer(opts TracerOptions) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(opts.Service),
			semconv.DeploymentEnvironment(opts.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(opts.Env, opts.SampleRatio)),
	}
	if opts.Endpoint != "" {
		exporter, err := jaeger.New(
			jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.Endpoint)),
		)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(opts.Service)

	GetLogger().Info("Tracer initialized",
		zap.String("service", opts.Service),
		zap.String("endpoint", opts.Endpoint),
		zap.Bool("export", opts.Endpoint != ""),
	)
	return tp, nil
}

func samplerFor(env string, ratio float64) sdktrace.Sampler {
	if env != "production" {
		return sdktrace.AlwaysSample()
	}
	if ratio <= 0 || ratio > 1 {
		ratio = 0.2
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func GetTracer() trace.Tracer {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return tracer
}

func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName)
}

// RecordError marks the span as failed when err is non-nil and returns err unchanged.
func RecordError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
