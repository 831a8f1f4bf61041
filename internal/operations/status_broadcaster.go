package operations

import (
	"log/slog"
	"sync"
	"time"
)

// EventHub receives run events for connected clients
type EventHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// StatusBroadcaster is the single authority for run status updates.
// It keeps a snapshot per run and pushes the whole snapshot on every change.
type StatusBroadcaster struct {
	mu       sync.RWMutex
	runs     map[string]*RunSnapshot
	latestID string
	hub      EventHub
	logger   *slog.Logger
	updates  chan updateRequest
	stop     chan struct{}
	stopOnce sync.Once
}

// RunSnapshot represents the complete state of a run at a point in time
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	RunDate     string         `json:"run_date"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type updateRequest struct {
	runID      string
	updateFunc func(*RunSnapshot)
	done       chan struct{}
}

// NewStatusBroadcaster creates a new status broadcaster. hub may be nil.
func NewStatusBroadcaster(hub EventHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		runs:    make(map[string]*RunSnapshot),
		hub:     hub,
		logger:  logger,
		updates: make(chan updateRequest, 100),
		stop:    make(chan struct{}),
	}

	go sb.processUpdates()

	return sb
}

// processUpdates applies updates one at a time
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.runs[req.runID]
	if !exists {
		snapshot = &RunSnapshot{
			RunID:     req.runID,
			Status:    string(OperationStatusPending),
			StartedAt: time.Now(),
			Steps:     []StepSnapshot{},
		}
		sb.runs[req.runID] = snapshot
		sb.latestID = req.runID
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}

	if OperationStatusValue(snapshot.Status).IsTerminal() && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}

	sb.broadcast(snapshot)
}

// broadcast sends a copy of the snapshot to the hub
func (sb *StatusBroadcaster) broadcast(snapshot *RunSnapshot) {
	if sb.hub == nil {
		return
	}

	sb.logger.Debug("broadcasting run snapshot",
		slog.String("run_id", snapshot.RunID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep))

	eventType := EventTypeRunSnapshot
	switch OperationStatusValue(snapshot.Status) {
	case OperationStatusCompleted, OperationStatusSkipped:
		eventType = EventTypeRunComplete
	case OperationStatusFailed, OperationStatusCancelled:
		eventType = EventTypeRunError
	}
	sb.hub.BroadcastUpdate(eventType, snapshot.RunID, snapshot.Status, copySnapshot(snapshot))
}

// UpdateStatus applies updateFunc to the run's snapshot and waits for it
func (sb *StatusBroadcaster) UpdateStatus(runID string, updateFunc func(*RunSnapshot)) {
	req := updateRequest{
		runID:      runID,
		updateFunc: updateFunc,
		done:       make(chan struct{}),
	}

	select {
	case sb.updates <- req:
	case <-sb.stop:
		return
	}
	select {
	case <-req.done:
	case <-sb.stop:
	}
}

// CreateRun initializes a run with the given step IDs and names
func (sb *StatusBroadcaster) CreateRun(runID, runDate string, steps []Step) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.RunDate = runDate
		snapshot.Status = string(OperationStatusPending)
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: string(StepStatusPending),
			}
		}
		snapshot.Message = "Run created"
	})
}

// StartRun marks a run as running
func (sb *StatusBroadcaster) StartRun(runID string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = string(OperationStatusRunning)
		snapshot.Message = "Run started"
	})
}

// StartStep marks a step active
func (sb *StatusBroadcaster) StartStep(runID, stepID string) {
	sb.updateStep(runID, stepID, func(step *StepSnapshot, snapshot *RunSnapshot) {
		step.Status = string(StepStatusActive)
		step.Progress = 0
		step.Message = "Step started"
		snapshot.CurrentStep = step.Name
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(runID, stepID string, metadata map[string]interface{}) {
	sb.updateStep(runID, stepID, func(step *StepSnapshot, _ *RunSnapshot) {
		step.Status = string(StepStatusCompleted)
		step.Progress = 100
		step.Message = "Step completed"
		if len(metadata) > 0 {
			step.Metadata = metadata
		}
	})
}

// SkipStep marks a step as skipped with reason
func (sb *StatusBroadcaster) SkipStep(runID, stepID, reason string) {
	sb.updateStep(runID, stepID, func(step *StepSnapshot, _ *RunSnapshot) {
		step.Status = string(StepStatusSkipped)
		step.Progress = 100
		step.Message = reason
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(runID, stepID string, err error) {
	sb.updateStep(runID, stepID, func(step *StepSnapshot, _ *RunSnapshot) {
		step.Status = string(StepStatusFailed)
		if err != nil {
			step.Error = err.Error()
		}
	})
}

func (sb *StatusBroadcaster) updateStep(runID, stepID string, fn func(*StepSnapshot, *RunSnapshot)) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				fn(&snapshot.Steps[i], snapshot)
				return
			}
		}
		snapshot.Steps = append(snapshot.Steps, StepSnapshot{ID: stepID, Name: stepID})
		fn(&snapshot.Steps[len(snapshot.Steps)-1], snapshot)
	})
}

// FinishRun marks a run completed or skipped
func (sb *StatusBroadcaster) FinishRun(runID string, status OperationStatusValue, message string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = string(status)
		snapshot.CurrentStep = ""
		snapshot.Message = message
	})
}

// FailRun marks a run as failed or cancelled
func (sb *StatusBroadcaster) FailRun(runID string, status OperationStatusValue, err error) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = string(status)
		if err != nil {
			snapshot.Error = err.Error()
		}
		snapshot.CurrentStep = ""
	})
}

// GetSnapshot returns a copy of the snapshot for a run
func (sb *StatusBroadcaster) GetSnapshot(runID string) (*RunSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.runs[runID]
	if !exists {
		return nil, false
	}
	return copySnapshot(snapshot), true
}

// Latest returns a copy of the most recently created run snapshot
func (sb *StatusBroadcaster) Latest() (*RunSnapshot, bool) {
	sb.mu.RLock()
	id := sb.latestID
	sb.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return sb.GetSnapshot(id)
}

// CleanupOldRuns removes finished runs older than maxAge
func (sb *StatusBroadcaster) CleanupOldRuns(maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, snapshot := range sb.runs {
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.runs, id)
			if id == sb.latestID {
				sb.latestID = ""
			}
			removed++
		}
	}
	return removed
}

// Stop shuts down the update loop
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func copySnapshot(s *RunSnapshot) *RunSnapshot {
	c := *s
	c.Steps = make([]StepSnapshot, len(s.Steps))
	copy(c.Steps, s.Steps)
	return &c
}
