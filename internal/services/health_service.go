package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"healthetl/internal/operations"
)

// Pinger checks a backing dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// NextRunner reports the next scheduled run
type NextRunner interface {
	NextRun() time.Time
}

// ClientCounter reports connected live-update clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	state     RunState
	history   Pinger
	scheduler NextRunner
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    float64                  `json:"uptime_seconds"`
	Pipeline  *PipelineHealth          `json:"pipeline,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
}

// PipelineHealth summarises the scheduler and the last run
type PipelineHealth struct {
	Running       bool       `json:"running"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
	LastRunDate   string     `json:"last_run_date,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunError  string     `json:"last_run_error,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health states
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusAlive    = "alive"
	StatusDisabled = "disabled"
)

// NewHealthService creates a health service. history, scheduler and hub are
// optional.
func NewHealthService(version string, state RunState, history Pinger, scheduler NextRunner, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		state:     state,
		history:   history,
		scheduler: scheduler,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health. A failing history database degrades the
// service but does not stop runs.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Pipeline:  hs.pipelineHealth(),
		Services:  make(map[string]ServiceHealth),
	}

	status.Services["history"] = hs.checkHistory(ctx)
	if status.Services["history"].Status == StatusDegraded {
		status.Status = StatusDegraded
	}

	if hs.hub != nil {
		status.Services["websocket"] = ServiceHealth{Status: StatusOK}
	}

	hs.logger.DebugContext(ctx, "health check completed", slog.String("status", status.Status))
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	runtimeInfo := map[string]interface{}{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
	if hs.hub != nil {
		runtimeInfo["websocket_clients"] = hs.hub.ClientCount()
	}
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Runtime:   runtimeInfo,
	}
}

func (hs *HealthService) pipelineHealth() *PipelineHealth {
	ph := &PipelineHealth{}
	if hs.state != nil {
		ph.Running = hs.state.IsRunning()
		if last := hs.state.LastResult(); last != nil {
			ph.LastRunID = last.ID
			ph.LastRunDate = last.RunDate
			ph.LastRunStatus = string(last.Status)
			ph.LastRunError = last.Error
		}
	}
	if hs.scheduler != nil {
		if next := hs.scheduler.NextRun(); !next.IsZero() {
			ph.NextRun = &next
		}
	}
	return ph
}

func (hs *HealthService) checkHistory(ctx context.Context) ServiceHealth {
	if hs.history == nil {
		return ServiceHealth{Status: StatusDisabled}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hs.history.Ping(ctx); err != nil {
		hs.logger.WarnContext(ctx, "history ping failed", slog.String("error", err.Error()))
		return ServiceHealth{Status: StatusDegraded, Message: err.Error()}
	}
	return ServiceHealth{Status: StatusOK}
}

var _ RunState = (*operations.Manager)(nil)
