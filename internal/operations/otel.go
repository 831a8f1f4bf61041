package operations

import (
	"context"
	"time"

	"healthetl/internal/infrastructure"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "healthetl.pipeline"
)

// PipelineTracer provides OpenTelemetry instrumentation for runs
type PipelineTracer struct {
	tracer          trace.Tracer
	businessMetrics *infrastructure.BusinessMetrics
}

// NewPipelineTracerWith creates a tracer from an explicit tracer and metric set
func NewPipelineTracerWith(tracer trace.Tracer, metrics *infrastructure.BusinessMetrics) *PipelineTracer {
	return &PipelineTracer{tracer: tracer, businessMetrics: metrics}
}

// Metrics returns the instruments used by the tracer
func (pt *PipelineTracer) Metrics() *infrastructure.BusinessMetrics {
	if pt == nil {
		return nil
	}
	return pt.businessMetrics
}

// TraceRun creates a span for a whole run
func (pt *PipelineTracer) TraceRun(ctx context.Context, runID, runDate, trigger string) (context.Context, trace.Span) {
	if pt == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := pt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.date", runDate),
			attribute.String("run.trigger", trigger),
		),
	)
	infrastructure.RecordActiveRunChange(ctx, pt.businessMetrics, 1)
	return ctx, span
}

// TraceStage creates a span for one step
func (pt *PipelineTracer) TraceStage(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	if pt == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return pt.tracer.Start(ctx, "pipeline.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordStage closes a step span and records its outcome
func (pt *PipelineTracer) RecordStage(ctx context.Context, span trace.Span, stepID string, outcome StepStatus, duration time.Duration, err error) {
	if pt == nil {
		return
	}
	span.SetAttributes(
		attribute.String("step.outcome", string(outcome)),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)
	if err != nil && outcome == StepStatusFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, string(outcome))
	}
	span.End()

	infrastructure.RecordStageMetrics(ctx, pt.businessMetrics, stepID, string(outcome), duration)
}

// RecordRun closes the run span and records run level metrics
func (pt *PipelineTracer) RecordRun(ctx context.Context, span trace.Span, resp *RunResponse, rowsLoaded int) {
	if pt == nil || resp == nil {
		return
	}
	m := pt.businessMetrics

	span.SetAttributes(
		attribute.String("run.status", string(resp.Status)),
		attribute.Float64("run.duration_seconds", resp.Duration.Seconds()),
	)

	if m != nil && rowsLoaded > 0 {
		m.RowsLoaded.Add(ctx, int64(rowsLoaded))
	}
	if resp.Report != nil {
		infrastructure.RecordRowsDropped(ctx, m, "incomplete", resp.Report.DroppedIncomplete)
	}
	if m != nil && resp.Published != nil {
		m.ObjectsWritten.Add(ctx, int64(len(resp.Published.Keys)),
			metric.WithAttributes(attribute.String("sink", resp.Published.Sink)))
		m.BytesWritten.Add(ctx, int64(resp.Published.Bytes),
			metric.WithAttributes(attribute.String("sink", resp.Published.Sink)))
	}
	if m != nil && resp.Metrics != nil && resp.Status == OperationStatusCompleted {
		m.AverageLengthOfStay.Record(ctx, resp.Metrics.AverageLengthOfStayDays)
		m.ReadmissionRate.Record(ctx, resp.Metrics.ReadmissionRatePercent)
		span.SetAttributes(attribute.Int("run.record_count", resp.Metrics.RecordCount))
	}

	infrastructure.RecordRunMetrics(ctx, m, resp.RunDate, string(resp.Status), resp.Duration)
	infrastructure.RecordActiveRunChange(ctx, m, -1)

	if resp.Status == OperationStatusFailed || resp.Status == OperationStatusCancelled {
		span.SetStatus(codes.Error, resp.Error)
	} else {
		span.SetStatus(codes.Ok, string(resp.Status))
	}
	span.End()
}
