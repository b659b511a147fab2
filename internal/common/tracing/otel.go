// Package tracing provides the process-wide OTel tracer pipeline for driverd.
//
// The pipeline is initialized once at startup by Init and flushed by Shutdown.
// Until Init installs an exporter, a no-op tracer is used (zero overhead), so
// packages may call Tracer freely at any time.
package tracing

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures the trace pipeline.
type Options struct {
	Enabled     bool
	ServiceName string
	Namespace   string
	// Endpoint is the OTLP/HTTP collector address. Empty uses the exporter's
	// default (localhost:4318, or OTEL_EXPORTER_OTLP_* env vars).
	Endpoint string
}

var (
	mu             sync.RWMutex
	tracerProvider trace.TracerProvider = noop.NewTracerProvider()
	sdkProvider    *sdktrace.TracerProvider
)

// Init installs the global tracer provider and propagator. With tracing
// disabled it leaves the no-op provider in place and returns nil.
func Init(ctx context.Context, opts Options) error {
	if !opts.Enabled {
		return nil
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if opts.Endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpointHost(opts.Endpoint)))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return err
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(opts.ServiceName))}
	if opts.Namespace != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceNamespace(opts.Namespace)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	mu.Lock()
	sdkProvider = provider
	tracerProvider = provider
	mu.Unlock()

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

// endpointHost strips the scheme from the endpoint URL for otlptracehttp.
func endpointHost(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}

// Tracer returns a named tracer. No-op when tracing is disabled.
func Tracer(name string) trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracerProvider.Tracer(name)
}

// Shutdown flushes pending spans and shuts down the provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	provider := sdkProvider
	sdkProvider = nil
	tracerProvider = noop.NewTracerProvider()
	mu.Unlock()

	if provider != nil {
		return provider.Shutdown(ctx)
	}
	return nil
}
