package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "healthetl/internal/errors"
	"healthetl/internal/history"
	"healthetl/internal/infrastructure"
	"healthetl/internal/operations"
)

// Runner executes a single pipeline run
type Runner interface {
	Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
}

// RunState reports the manager's live state
type RunState interface {
	IsRunning() bool
	LastResult() *operations.RunResponse
}

// SnapshotSource serves live progress of recent runs
type SnapshotSource interface {
	GetSnapshot(runID string) (*operations.RunSnapshot, bool)
}

// HistoryReader reads persisted run records
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.RunRecord, error)
	List(ctx context.Context, opts history.ListOptions) ([]history.RunRecord, error)
}

// RunAccepted acknowledges a run started in the background
type RunAccepted struct {
	ID      string `json:"id"`
	RunDate string `json:"run_date"`
	Trigger string `json:"trigger"`
	DryRun  bool   `json:"dry_run"`
	Status  string `json:"status"`
}

// RunView combines the live snapshot and the stored record of a run
type RunView struct {
	ID     string                  `json:"id"`
	Live   *operations.RunSnapshot `json:"live,omitempty"`
	Record *history.RunRecord      `json:"record,omitempty"`
}

// RunService starts pipeline runs on demand and answers run queries
type RunService struct {
	runner    Runner
	state     RunState
	snapshots SnapshotSource
	history   HistoryReader
	today     func() time.Time
	logger    *slog.Logger

	// background runs outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewRunService creates the service. history may be nil when no database is
// configured; today dates requests that carry no run date.
func NewRunService(baseCtx context.Context, runner Runner, state RunState, snapshots SnapshotSource, history HistoryReader, today func() time.Time, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	if today == nil {
		today = func() time.Time { return operations.DateOf(time.Now(), time.UTC) }
	}
	return &RunService{
		runner:    runner,
		state:     state,
		snapshots: snapshots,
		history:   history,
		today:     today,
		logger:    logger.With(slog.String("service", "runs")),
		baseCtx:   baseCtx,
	}
}

// StartRun launches a run in the background. It returns once the run holds
// the manager, so a run rejected by a concurrent trigger is reported to the
// caller instead of being accepted.
func (s *RunService) StartRun(ctx context.Context, req operations.RunRequest) (*RunAccepted, error) {
	if s.state.IsRunning() {
		return nil, operations.ErrRunInProgress
	}
	req = s.normalize(req)

	started := make(chan struct{})
	var once sync.Once
	runCtx := infrastructure.WithTraceID(s.baseCtx, infrastructure.GetTraceID(ctx))
	runCtx = operations.WithStartNotify(runCtx, func() { once.Do(func() { close(started) }) })

	// buffered; the caller may already have returned
	early := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.runner.Execute(runCtx, req)
		select {
		case <-started:
			if err != nil {
				s.logger.WarnContext(runCtx, "background_run_failed",
					slog.String("run_id", req.ID),
					slog.String("error", err.Error()))
			}
		default:
			early <- err
		}
	}()

	select {
	case <-started:
	case err := <-early:
		// returned without starting: rejected, or failed before any step ran
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.logger.InfoContext(ctx, "run_accepted",
		slog.String("run_id", req.ID),
		slog.String("run_date", req.RunDate.Format(operations.RunDateLayout)),
		slog.Bool("dry_run", req.DryRun))

	return &RunAccepted{
		ID:      req.ID,
		RunDate: req.RunDate.Format(operations.RunDateLayout),
		Trigger: req.Trigger,
		DryRun:  req.DryRun,
		Status:  "accepted",
	}, nil
}

// RunSync executes a run and waits for its outcome
func (s *RunService) RunSync(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error) {
	return s.runner.Execute(ctx, s.normalize(req))
}

func (s *RunService) normalize(req operations.RunRequest) operations.RunRequest {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Trigger == "" {
		req.Trigger = operations.TriggerManual
	}
	if req.RunDate.IsZero() {
		req.RunDate = s.today()
	}
	return req
}

// GetRun returns what is known about a run, live or recorded
func (s *RunService) GetRun(ctx context.Context, id string) (*RunView, error) {
	view := &RunView{ID: id}
	if s.snapshots != nil {
		if snapshot, ok := s.snapshots.GetSnapshot(id); ok {
			view.Live = snapshot
		}
	}

	if s.history != nil {
		rec, err := s.history.Get(ctx, id)
		switch {
		case err == nil:
			view.Record = rec
		case apperrors.TypeOf(err) != apperrors.ErrTypeNotFound:
			return nil, err
		}
	}

	if view.Live == nil && view.Record == nil {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	return view, nil
}

// ListRuns returns recorded runs newest first
func (s *RunService) ListRuns(ctx context.Context, opts history.ListOptions) ([]history.RunRecord, error) {
	if s.history == nil {
		return nil, apperrors.ErrHistoryDisabled
	}
	return s.history.List(ctx, opts)
}

// LastResult returns the most recent run finished by this process
func (s *RunService) LastResult() *operations.RunResponse {
	return s.state.LastResult()
}

// Wait blocks until background runs have returned
func (s *RunService) Wait() {
	s.wg.Wait()
}
