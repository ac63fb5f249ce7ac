package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "share-your-sound"
	tracesPath  = "/v1/traces"
)

// tracer returns the package tracer. It must be looked up on each call
// because the global TracerProvider isn't set until Init runs.
func tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// Init creates and registers a tracer provider exporting to the OTLP HTTP
// endpoint, given as a full URL or as host:port. The caller owns Shutdown on
// the returned provider.
func Init(ctx context.Context, endpoint string, logger zerolog.Logger) (*sdktrace.TracerProvider, error) {
	// Bridge OTel's internal logger to zerolog
	otel.SetLogger(zerologr.New(&logger))

	opts, err := endpointOptions(endpoint)
	if err != nil {
		return nil, err
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// endpointOptions accepts the standard OTEL_EXPORTER_OTLP_ENDPOINT form, a
// base URL such as http://collector:4318 that gets /v1/traces appended, as
// well as a bare host:port, which is sent over plain HTTP.
func endpointOptions(endpoint string) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + tracesPath
	return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u.String())}, nil
}

// StoreSpan starts a span for a post store operation.
func StoreSpan(ctx context.Context, store, op string) (context.Context, trace.Span) {
	return tracer().Start(ctx, store+"."+op,
		trace.WithAttributes(
			attribute.String("db.system", store),
			attribute.String("db.operation", op),
		),
	)
}

// EndWithError records err on span and marks it failed. A nil err is a no-op.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
