package history

import (
	"context"
	"log/slog"

	"healthetl/internal/operations"
)

// Runner executes a single pipeline run
type Runner interface {
	Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
}

// RecordingRunner records every run its wrapped runner completes
type RecordingRunner struct {
	next  Runner
	store *Store
}

// Wrap returns a runner that persists each run outcome after it finishes
func (s *Store) Wrap(next Runner) *RecordingRunner {
	return &RecordingRunner{next: next, store: s}
}

// Execute runs req and records the response. Recording failures are logged,
// never returned, so they cannot turn a good run into a failed one.
func (r *RecordingRunner) Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error) {
	resp, err := r.next.Execute(ctx, req)
	if resp == nil {
		return resp, err
	}

	if rerr := r.store.Record(context.WithoutCancel(ctx), resp); rerr != nil {
		r.store.logger.WarnContext(ctx, "run_record_failed",
			slog.String("run_id", resp.ID),
			slog.String("error", rerr.Error()))
	}
	return resp, err
}
