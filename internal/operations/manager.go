package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"healthetl/internal/infrastructure"
)

// Manager orchestrates pipeline runs. At most one run executes at a time.
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *PipelineTracer
	logger      *slog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	last *RunResponse
}

// NewManager creates a run manager. hub may be nil.
func NewManager(hub EventHub, registry *Registry, config *Config, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, logger),
		logger:      logger,
	}
}

// SetTracer enables span and metric recording
func (m *Manager) SetTracer(tracer *PipelineTracer) {
	m.tracer = tracer
}

// RegisterStage registers a step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the step registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// IsRunning reports whether a run is executing
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// LastResult returns the response of the most recent finished run
func (m *Manager) LastResult() *RunResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Close stops the status broadcaster
func (m *Manager) Close() {
	m.broadcaster.Stop()
}

type startNotifyKey struct{}

// WithStartNotify returns a context that makes Execute call fn once the run
// holds the manager and its snapshot is visible. fn is not called for a
// rejected run.
func WithStartNotify(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, startNotifyKey{}, fn)
}

// NotifyStarted calls the function registered with WithStartNotify, if any
func NotifyStarted(ctx context.Context) {
	if fn, ok := ctx.Value(startNotifyKey{}).(func()); ok && fn != nil {
		fn()
	}
}

// Execute performs one run. It returns ErrRunInProgress without side effects
// when another run is executing. On failure both the response and the error
// are returned.
func (m *Manager) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer m.running.Store(false)

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	runDate := m.runDate(req.RunDate)
	runDateStr := runDate.Format(RunDateLayout)

	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, runSpan := m.tracer.TraceRun(ctx, req.ID, runDateStr, req.Trigger)

	state := NewOperationState(req.ID)
	state.SetConfig(ConfigKeyRunDate, runDate)
	state.SetConfig(ConfigKeyDryRun, req.DryRun)
	state.SetConfig(ConfigKeyTrigger, req.Trigger)

	steps, err := m.registry.GetDependencyOrder()
	if err == nil && len(steps) == 0 {
		err = errors.New("no steps registered")
	}
	if err != nil {
		opErr := NewFatalError("failed to resolve step order", err)
		m.logRunError(ctx, req.ID, opErr)
		state.Fail(opErr)
		resp := m.createResponse(state, req)
		m.finish(ctx, runSpan, resp, state)
		return resp, opErr
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	m.broadcaster.CreateRun(req.ID, runDateStr, steps)
	NotifyStarted(ctx)
	m.logRunStart(ctx, req, runDateStr)
	state.Start()
	m.broadcaster.StartRun(req.ID)

	err = m.executeSequential(ctx, state, steps)

	switch {
	case err != nil && GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
		m.broadcaster.FailRun(req.ID, OperationStatusCancelled, err)
	case err != nil:
		state.Fail(err)
		m.broadcaster.FailRun(req.ID, OperationStatusFailed, err)
	default:
		status := OperationStatusCompleted
		message := "Run completed"
		if publish := state.GetStage(StepIDPublish); publish != nil && publish.GetStatus() == StepStatusSkipped {
			status = OperationStatusSkipped
			message = "Run finished without input"
		}
		state.Complete(status)
		m.broadcaster.FinishRun(req.ID, status, message)
	}

	resp := m.createResponse(state, req)
	m.finish(ctx, runSpan, resp, state)

	return resp, err
}

// runDate normalizes the requested date to midnight in the configured
// location, defaulting to today
func (m *Manager) runDate(requested time.Time) time.Time {
	if requested.IsZero() {
		return m.config.Today()
	}
	loc := m.config.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(requested.Year(), requested.Month(), requested.Day(), 0, 0, 0, 0, loc)
}

// executeSequential executes steps one by one. The first failure stops the
// run and marks the remaining steps skipped.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.logger.WarnContext(ctx, "run_cancelled",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(state, steps[i:], "run cancelled")
			return NewCancellationError(step.ID(), ctxErr)
		}

		m.logger.InfoContext(ctx, "executing_stage",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("previous step %s failed", step.ID()))
			return err
		}
	}

	m.logger.InfoContext(ctx, "all_stages_finished", slog.String("run_id", state.ID))
	return nil
}

// executeStage executes a single step and records its outcome
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("state for step %s not found", step.ID()), nil)
	}

	if err := step.Validate(state); err != nil {
		opErr := &OperationError{
			Type:    ErrorTypeInvalidState,
			Step:    step.ID(),
			Message: "step preconditions not met",
			Cause:   err,
		}
		stepState.Fail(opErr)
		m.broadcaster.FailStep(state.ID, step.ID(), opErr)
		return opErr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stageCtx, span := m.tracer.TraceStage(stageCtx, state.ID, step.ID())

	stepState.Start()
	m.broadcaster.StartStep(state.ID, step.ID())
	m.logStageStart(ctx, state.ID, step.ID())

	start := time.Now()
	err := step.Execute(stageCtx, state)
	duration := time.Since(start)

	if skip, ok := IsSkip(err); ok {
		stepState.Skip(skip.Reason)
		m.broadcaster.SkipStep(state.ID, step.ID(), skip.Reason)
		m.tracer.RecordStage(ctx, span, step.ID(), StepStatusSkipped, duration, nil)
		m.logger.WarnContext(ctx, "stage_skipped",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.String("reason", skip.Reason))
		return nil
	}

	if err != nil {
		var opErr *OperationError
		switch {
		case ctx.Err() != nil:
			opErr = NewCancellationError(step.ID(), err)
		case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
			opErr = NewTimeoutError(step.ID(), timeout.String())
			opErr.Cause = err
		default:
			opErr = WrapError(err, step.ID())
		}
		stepState.Fail(opErr)
		m.broadcaster.FailStep(state.ID, step.ID(), opErr)
		m.tracer.RecordStage(ctx, span, step.ID(), StepStatusFailed, duration, opErr)
		return opErr
	}

	stepState.Complete()
	m.broadcaster.CompleteStep(state.ID, step.ID(), stepState.MetadataSnapshot())
	m.tracer.RecordStage(ctx, span, step.ID(), StepStatusCompleted, duration, nil)
	m.logStageComplete(ctx, state.ID, step.ID(), duration)
	return nil
}

// skipRemaining marks pending steps as skipped with reason
func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		stepState := state.GetStage(step.ID())
		if stepState != nil && stepState.GetStatus() == StepStatusPending {
			stepState.Skip(reason)
			m.broadcaster.SkipStep(state.ID, step.ID(), reason)
		}
	}
}

// createResponse builds the run response from state
func (m *Manager) createResponse(state *OperationState, req RunRequest) *RunResponse {
	resp := &RunResponse{
		ID:        state.ID,
		RunDate:   state.RunDate().Format(RunDateLayout),
		Trigger:   req.Trigger,
		Status:    state.GetStatus(),
		StartedAt: state.StartTime,
		Duration:  state.Duration(),
		Published: publishedFrom(state),
	}
	if state.EndTime != nil {
		resp.FinishedAt = *state.EndTime
	}

	for _, stepState := range state.OrderedStages() {
		resp.Steps = append(resp.Steps, stepState.Result())
	}

	if result := resultFrom(state); result != nil {
		metrics := result.Metrics
		report := result.Report
		resp.Metrics = &metrics
		resp.Report = &report
	}

	if state.Error != nil {
		resp.Error = state.Error.Error()
		resp.Retryable = IsRetryable(state.Error)
	}

	return resp
}

// finish records telemetry and keeps the response as the last result
func (m *Manager) finish(ctx context.Context, span trace.Span, resp *RunResponse, state *OperationState) {
	rowsLoaded := 0
	if load := state.GetStage(StepIDLoad); load != nil {
		if rows, ok := load.MetadataSnapshot()["rows"].(int); ok {
			rowsLoaded = rows
		}
	}
	m.tracer.RecordRun(ctx, span, resp, rowsLoaded)
	m.logRunComplete(ctx, resp)

	m.mu.Lock()
	m.last = resp
	m.mu.Unlock()
}
