package operations

import (
	"time"
)

// Config represents the run execution configuration
type Config struct {
	// Step-specific timeouts
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// Location dates runs that arrive without an explicit run date
	Location *time.Location `json:"-"`
}

// NewConfig returns the default run configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StepIDLoad:      DefaultLoadTimeout,
			StepIDValidate:  DefaultStageTimeout,
			StepIDTransform: DefaultTransformTimeout,
			StepIDPublish:   DefaultPublishTimeout,
		},
		Location: time.UTC,
	}
}

// GetStageTimeout returns the timeout for a specific step
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific step
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}

// Today returns the current calendar date in the configured location
func (c *Config) Today() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now(), loc)
}

// DateOf truncates t to its calendar date in loc
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
