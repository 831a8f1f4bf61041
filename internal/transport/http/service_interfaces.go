package http

import (
	"context"

	"healthetl/internal/history"
	"healthetl/internal/operations"
	"healthetl/internal/services"
)

// RunServiceInterface defines the run operations used by RunsHandler
type RunServiceInterface interface {
	StartRun(ctx context.Context, req operations.RunRequest) (*services.RunAccepted, error)
	RunSync(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
	GetRun(ctx context.Context, id string) (*services.RunView, error)
	ListRuns(ctx context.Context, opts history.ListOptions) ([]history.RunRecord, error)
}

// HealthServiceInterface defines the health checks used by HealthHandler
type HealthServiceInterface interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
}

var (
	_ RunServiceInterface    = (*services.RunService)(nil)
	_ HealthServiceInterface = (*services.HealthService)(nil)
)
