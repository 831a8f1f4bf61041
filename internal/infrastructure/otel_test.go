package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"healthetl/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(config.TelemetryConfig{
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1,
	}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	_, err := InitializeOTel(config.TelemetryConfig{TraceExporter: "jaeger"}, discardLogger())
	assert.Error(t, err)

	_, err = InitializeOTel(config.TelemetryConfig{MetricExporter: "statsd"}, discardLogger())
	assert.Error(t, err)
}

func TestOTelDisabled(t *testing.T) {
	providers, err := InitializeOTel(config.TelemetryConfig{TraceExporter: "none", MetricExporter: "none"}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, providers.PrometheusHTTP)

	// no-op meter still hands out usable instruments
	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	RecordRunMetrics(context.Background(), metrics, "2024-01-15", "completed", time.Second)
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "run")
	AddSpanEvent(ctx, "rows_loaded", map[string]interface{}{"rows": 5, "source": "csv"})
	SetSpanAttributes(ctx, map[string]interface{}{"run.date": "2024-01-15", "dry_run": false})
	RecordError(ctx, errors.New("boom"))

	traceID := TraceIDFromContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	// one explicit event plus the exception event from RecordError
	assert.Len(t, ended[0].Events(), 2)
	assert.Equal(t, "rows_loaded", ended[0].Events()[0].Name)
	assert.Len(t, ended[0].Attributes(), 2)
}

func TestTraceIDFromContextWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestBusinessMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	RecordRunMetrics(ctx, metrics, "2024-01-15", "completed", 2*time.Second)
	RecordStageMetrics(ctx, metrics, "transform", "completed", time.Millisecond)
	RecordActiveRunChange(ctx, metrics, 1)
	RecordRowsDropped(ctx, metrics, "incomplete", 3)
	RecordRowsDropped(ctx, metrics, "incomplete", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["etl_runs_total"])
	assert.True(t, names["etl_run_duration_seconds"])
	assert.True(t, names["etl_stage_outcomes_total"])
	assert.True(t, names["etl_active_runs"])
	assert.True(t, names["etl_rows_dropped_total"])

	// nil metrics are ignored
	RecordRunMetrics(ctx, nil, "2024-01-15", "failed", time.Second)
}
