package tracing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder swaps in an in-memory provider for the duration of the test.
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	mu.Lock()
	prev := tracerProvider
	tracerProvider = provider
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		tracerProvider = prev
		mu.Unlock()
		_ = provider.Shutdown(context.Background())
	})
	return rec
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "strips http prefix", input: "http://localhost:4318", expected: "localhost:4318"},
		{name: "strips https prefix", input: "https://otel.example.com:4318", expected: "otel.example.com:4318"},
		{name: "returns unchanged when no scheme", input: "localhost:4318", expected: "localhost:4318"},
		{name: "handles empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := endpointHost(tt.input)
			if got != tt.expected {
				t.Errorf("endpointHost(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInit_DisabledKeepsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{Enabled: false}))

	_, span := Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestInit_EnabledInstallsProvider(t *testing.T) {
	// The exporter only dials on export, so no collector is needed.
	err := Init(context.Background(), Options{
		Enabled:     true,
		ServiceName: "driverd-test",
		Namespace:   "meta",
		Endpoint:    "http://127.0.0.1:1",
	})
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "real")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// Export to an unreachable collector may fail; only the reset matters here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = Shutdown(shutdownCtx)

	_, after := Tracer("test").Start(context.Background(), "after")
	defer after.End()
	assert.False(t, after.SpanContext().IsValid())
}

func TestTraceDriverCall(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := TraceDriverCall(context.Background(), "navigate", "sess-1")
	require.NotNil(t, ctx)
	TraceDriverResult(span, 200, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "webdriver.navigate", spans[0].Name())
	v, ok := attrValue(spans[0].Attributes(), "webdriver.session_id")
	require.True(t, ok)
	assert.Equal(t, "sess-1", v.AsString())
	v, ok = attrValue(spans[0].Attributes(), "http.status_code")
	require.True(t, ok)
	assert.EqualValues(t, 200, v.AsInt64())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTraceDriverResult_Error(t *testing.T) {
	rec := useRecorder(t)

	_, span := TraceDriverCall(context.Background(), "new_session", "")
	TraceDriverResult(span, 0, fmt.Errorf("connection refused"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "connection refused", spans[0].Status().Description)
	_, ok := attrValue(spans[0].Attributes(), "webdriver.session_id")
	assert.False(t, ok)
	_, ok = attrValue(spans[0].Attributes(), "http.status_code")
	assert.False(t, ok)
}

func TestTraceProcessEvent(t *testing.T) {
	rec := useRecorder(t)

	TraceProcessEvent(context.Background(), ProcessSpawned, 1234, 4444)
	TraceProcessEvent(context.Background(), ProcessExited, 1234, 4444)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "process.spawned", spans[0].Name())
	assert.Equal(t, "process.exited", spans[1].Name())
	v, _ := attrValue(spans[0].Attributes(), "process.pid")
	assert.EqualValues(t, 1234, v.AsInt64())
	v, _ = attrValue(spans[1].Attributes(), "driver.port")
	assert.EqualValues(t, 4444, v.AsInt64())
}

func TestShutdown(t *testing.T) {
	t.Run("no-op shutdown does not error", func(t *testing.T) {
		if err := Shutdown(context.Background()); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}
