package operations

import (
	"context"
	"log/slog"
	"time"
)

// logRunStart logs the start of a run
func (m *Manager) logRunStart(ctx context.Context, req RunRequest, runDate string) {
	m.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", req.ID),
		slog.String("run_date", runDate),
		slog.String("trigger", req.Trigger),
		slog.Bool("dry_run", req.DryRun))
}

// logRunComplete logs the outcome of a run
func (m *Manager) logRunComplete(ctx context.Context, resp *RunResponse) {
	attrs := []any{
		slog.String("run_id", resp.ID),
		slog.String("run_date", resp.RunDate),
		slog.String("status", string(resp.Status)),
		slog.Duration("duration", resp.Duration),
	}
	if resp.Metrics != nil {
		attrs = append(attrs, slog.Int("record_count", resp.Metrics.RecordCount))
	}
	if resp.Error != "" {
		attrs = append(attrs, slog.String("error", resp.Error), slog.Bool("retryable", resp.Retryable))
		m.logger.ErrorContext(ctx, "run_complete", attrs...)
		return
	}
	m.logger.InfoContext(ctx, "run_complete", attrs...)
}

// logRunError logs a run level error
func (m *Manager) logRunError(ctx context.Context, runID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "run_error",
		slog.String("run_id", runID),
		slog.String("error", errorMsg))
}

// logStageStart logs the start of a step
func (m *Manager) logStageStart(ctx context.Context, runID, stepID string) {
	m.logger.DebugContext(ctx, "stage_start",
		slog.String("run_id", runID),
		slog.String("step", stepID))
}

// logStageComplete logs the completion of a step
func (m *Manager) logStageComplete(ctx context.Context, runID, stepID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "stage_complete",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

// logStageError logs a step error
func (m *Manager) logStageError(ctx context.Context, runID, stepID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "stage_error",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.String("error", errorMsg),
		slog.String("error_type", string(GetErrorType(err))))
}
