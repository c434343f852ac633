package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/subjectboard/server/internal/config"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracingRejectsSampleRate(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:    true,
		Exporter:   "none",
		SampleRate: 1.5,
	}, "test")
	require.ErrorContains(t, err, "invalid sample rate")
}

func TestInitTracingRejectsExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "zipkin",
		ServiceName: "subjectboard",
		SampleRate:  1,
	}, "test")
	require.ErrorContains(t, err, "unsupported exporter")
}

func TestInitTracingNoneExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	shutdown, err := InitTracing(ctx, config.TracingConfig{
		Enabled:     true,
		Exporter:    "none",
		ServiceName: "subjectboard",
		SampleRate:  1,
	}, "test")
	require.NoError(t, err)

	_, span := GetTracer("test").Start(ctx, "op")
	require.True(t, span.SpanContext().IsValid())
	require.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(ctx))
}
