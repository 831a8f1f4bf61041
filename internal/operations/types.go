package operations

import (
	"time"

	"healthetl/internal/publish"
	"healthetl/pkg/contracts/domain"
)

// Pipeline step identifiers
const (
	StepIDLoad      = "load"
	StepIDValidate  = "validate"
	StepIDTransform = "transform"
	StepIDPublish   = "publish"
)

// Pipeline step names
const (
	StepNameLoad      = "Load Snapshot"
	StepNameValidate  = "Validate Records"
	StepNameTransform = "Transform & Summarise"
	StepNamePublish   = "Publish Outputs"
)

// Context keys for data handed between steps
const (
	ContextKeyTable     = "table"
	ContextKeyResult    = "transform_result"
	ContextKeyPublished = "published"
	ContextKeySource    = "source"
)

// Config keys set from the request
const (
	ConfigKeyRunDate = "run_date"
	ConfigKeyDryRun  = "dry_run"
	ConfigKeyTrigger = "trigger"
)

// Event types pushed to the hub
const (
	EventTypeRunSnapshot = "run:snapshot"
	EventTypeRunComplete = "run:complete"
	EventTypeRunError    = "run:error"
)

// Trigger sources
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
	TriggerWatch    = "watch"
)

// Default timeouts
const (
	DefaultStageTimeout     = 10 * time.Minute
	DefaultLoadTimeout      = 15 * time.Minute
	DefaultTransformTimeout = 15 * time.Minute
	DefaultPublishTimeout   = 5 * time.Minute
)

// RunDateLayout is the calendar date format used for run dates and object keys
const RunDateLayout = publish.DateLayout

// RunRequest represents a request to execute one pipeline run
type RunRequest struct {
	ID      string    `json:"id"`
	RunDate time.Time `json:"run_date"`
	Trigger string    `json:"trigger"`
	DryRun  bool      `json:"dry_run"`
}

// RunResponse is the structured outcome of a run
type RunResponse struct {
	ID         string                 `json:"id"`
	RunDate    string                 `json:"run_date"`
	Trigger    string                 `json:"trigger,omitempty"`
	Status     OperationStatusValue   `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Duration   time.Duration          `json:"duration"`
	Steps      []StepResult           `json:"steps"`
	Metrics    *domain.KPISummary     `json:"metrics,omitempty"`
	Report     *domain.CleaningReport `json:"report,omitempty"`
	Published  *publish.Published     `json:"published,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
}

// StepResult is the reported outcome of a single step
type StepResult struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// Step returns the result for the step with the given ID
func (r *RunResponse) Step(id string) (StepResult, bool) {
	if r == nil {
		return StepResult{}, false
	}
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepResult{}, false
}
