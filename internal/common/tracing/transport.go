package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	webdriverTracerName = "driverd-webdriver"
	processTracerName   = "driverd-process"
)

// Driver process lifecycle events.
const (
	ProcessSpawned = "spawned"
	ProcessExited  = "exited"
)

// TraceDriverCall starts a span for one WebDriver protocol call.
// Caller must call span.End() when the response is received.
func TraceDriverCall(ctx context.Context, operation, sessionID string) (context.Context, trace.Span) {
	ctx, span := Tracer(webdriverTracerName).Start(ctx, "webdriver."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("webdriver.operation", operation))
	if sessionID != "" {
		span.SetAttributes(attribute.String("webdriver.session_id", sessionID))
	}
	return ctx, span
}

// TraceDriverResult records the outcome of a WebDriver call on the span.
func TraceDriverResult(span trace.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	RecordError(span, err)
}

// TraceProcessEvent creates a single span for a driver process lifecycle
// event, ProcessSpawned or ProcessExited.
func TraceProcessEvent(ctx context.Context, event string, pid, port int) {
	_, span := Tracer(processTracerName).Start(ctx, "process."+event,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(
		attribute.Int("process.pid", pid),
		attribute.Int("driver.port", port),
	)
}

// RecordError marks the span as failed when err is non-nil.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
