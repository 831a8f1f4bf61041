package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/config"
	"healthetl/internal/operations"
)

// fakeRunner returns the queued errors in order, then succeeds
type fakeRunner struct {
	mu       sync.Mutex
	errs     []error
	requests []operations.RunRequest
	deadline []bool
}

func (f *fakeRunner) Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	_, hasDeadline := ctx.Deadline()
	f.deadline = append(f.deadline, hasDeadline)

	resp := &operations.RunResponse{
		ID:      "run",
		RunDate: req.RunDate.Format(operations.RunDateLayout),
		Trigger: req.Trigger,
		Status:  operations.OperationStatusCompleted,
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			resp.Status = operations.OperationStatusFailed
			return resp, err
		}
	}
	return resp, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testScheduleConfig() config.ScheduleConfig {
	return config.ScheduleConfig{
		Spec:       "0 2 * * *",
		Timezone:   "UTC",
		RunTimeout: time.Minute,
		Retry: config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     3 * time.Second,
			Multiplier:   2,
		},
	}
}

func newTestScheduler(t *testing.T, runner Runner, cfg config.ScheduleConfig) (*Scheduler, *[]time.Duration) {
	t.Helper()
	now := time.Date(2024, 3, 15, 1, 30, 0, 0, time.UTC)
	s, err := New(runner, cfg, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	waits := &[]time.Duration{}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	return s, waits
}

func retryableErr() error {
	return operations.NewTimeoutError(operations.StepIDPublish, "5m0s")
}

func TestRunWithRetryRecoversFromTransientFailure(t *testing.T) {
	runner := &fakeRunner{errs: []error{retryableErr(), retryableErr()}}
	s, waits := newTestScheduler(t, runner, testScheduleConfig())

	resp, err := s.Trigger(context.Background(), operations.TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, 3, runner.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)

	for _, req := range runner.requests {
		assert.Equal(t, "2024-03-15", req.RunDate.Format(operations.RunDateLayout))
		assert.Equal(t, operations.TriggerSchedule, req.Trigger)
	}
	assert.Equal(t, []bool{true, true, true}, runner.deadline)
}

func TestRunWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	runner := &fakeRunner{errs: []error{retryableErr(), retryableErr(), retryableErr(), retryableErr()}}
	s, waits := newTestScheduler(t, runner, testScheduleConfig())

	_, err := s.Trigger(context.Background(), operations.TriggerManual)
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(err))
	assert.Equal(t, 3, runner.calls())
	assert.Len(t, *waits, 2)
}

func TestRunWithRetrySkipsPermanentFailures(t *testing.T) {
	cases := map[string]error{
		"validation":  operations.NewValidationError(operations.StepIDValidate, errors.New("age out of range")),
		"in progress": operations.ErrRunInProgress,
		"plain":       errors.New("boom"),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{errs: []error{failure}}
			s, waits := newTestScheduler(t, runner, testScheduleConfig())

			_, err := s.Trigger(context.Background(), operations.TriggerManual)
			require.ErrorIs(t, err, failure)
			assert.Equal(t, 1, runner.calls())
			assert.Empty(t, *waits)
		})
	}
}

func TestRunWithRetryStopsWhenContextCancelled(t *testing.T) {
	runner := &fakeRunner{errs: []error{retryableErr(), retryableErr()}}
	s, _ := newTestScheduler(t, runner, testScheduleConfig())
	s.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunWithRetry(ctx, operations.RunRequest{RunDate: time.Now()})
	require.Error(t, err)
	assert.Equal(t, 1, runner.calls())
}

func TestBackoffIsCapped(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeRunner{}, testScheduleConfig())

	assert.Equal(t, time.Second, s.backoff(1))
	assert.Equal(t, 2*time.Second, s.backoff(2))
	assert.Equal(t, 3*time.Second, s.backoff(3))
	assert.Equal(t, 3*time.Second, s.backoff(8))
}

func TestNextRunUsesScheduleTimezone(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Timezone = "Asia/Baghdad"
	s, _ := newTestScheduler(t, &fakeRunner{}, cfg)

	next := s.NextRun()
	assert.Equal(t, "Asia/Baghdad", next.Location().String())
	assert.Equal(t, 2, next.Hour())
	assert.True(t, next.After(time.Date(2024, 3, 15, 1, 30, 0, 0, time.UTC)))
}

func TestTriggerDatesRunInScheduleTimezone(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Timezone = "Asia/Baghdad"
	runner := &fakeRunner{}
	now := time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC)
	s, err := New(runner, cfg, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	resp, err := s.Trigger(context.Background(), operations.TriggerWatch)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-16", resp.RunDate)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Spec = "every day"
	_, err := New(&fakeRunner{}, cfg, nil)
	assert.ErrorContains(t, err, "invalid schedule")

	cfg = testScheduleConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err = New(&fakeRunner{}, cfg, nil)
	assert.ErrorContains(t, err, "invalid timezone")

	_, err = New(nil, testScheduleConfig(), nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeRunner{}, testScheduleConfig())
	s.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduledRunUsesScheduleTrigger(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestScheduler(t, runner, testScheduleConfig())

	s.scheduledRun()
	require.Equal(t, 1, runner.calls())
	assert.Equal(t, operations.TriggerSchedule, runner.requests[0].Trigger)
}
