package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
)

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 0, want: "AlwaysOnSampler"},
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0.25, want: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		assert.Contains(t, sampler(tt.rate).Description(), tt.want)
	}
}

func TestTraceID_NoSpan(t *testing.T) {
	ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "noop")
	defer span.End()

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestSearchSpan(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartSearchSpan(context.Background(), "search", "items", 1)
	assert.NotEmpty(t, TraceID(ctx))
	EndSearchSpan(span, 7, 15*time.Millisecond, nil)

	_, failed := StartSearchSpan(context.Background(), "compile", "media", 0)
	EndSearchSpan(failed, 0, time.Millisecond, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "search.search", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("search.resource_type", "items"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("search.results", 7))

	assert.Equal(t, "search.compile", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestDBSpan(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartDBSpan(context.Background(), "SELECT", "resource")
	EndDBSpan(span, errors.New("timeout"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.SELECT", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.table", "resource"))
}
