package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"healthetl/internal/config"
	"healthetl/internal/infrastructure"
	"healthetl/internal/operations"
)

// Runner executes a single pipeline run
type Runner interface {
	Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the time source used to date runs
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithMetrics records retries on the given instruments
func WithMetrics(metrics *infrastructure.BusinessMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// Scheduler fires the daily run and retries runs that fail transiently
type Scheduler struct {
	runner   Runner
	cfg      config.ScheduleConfig
	loc      *time.Location
	schedule cron.Schedule
	cron     *cron.Cron
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses the schedule and prepares a stopped scheduler
func New(runner Runner, cfg config.ScheduleConfig, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}

	s := &Scheduler{
		runner:   runner,
		cfg:      cfg,
		loc:      loc,
		schedule: schedule,
		logger:   infrastructure.WithComponent(logger, "scheduler"),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(schedule, cron.FuncJob(s.scheduledRun))

	return s, nil
}

// Start begins firing scheduled runs. Runs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler_started",
		slog.String("spec", s.cfg.Spec),
		slog.String("timezone", s.loc.String()),
		slog.Time("next_run", s.NextRun()))
}

// Stop halts the schedule, cancels an in-flight run and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "scheduler_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// NextRun returns the next time the schedule fires
func (s *Scheduler) NextRun() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

// Location returns the time zone runs are dated in
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Trigger runs the pipeline for today's date with the retry policy applied
func (s *Scheduler) Trigger(ctx context.Context, trigger string) (*operations.RunResponse, error) {
	return s.RunWithRetry(ctx, operations.RunRequest{
		RunDate: operations.DateOf(s.now(), s.loc),
		Trigger: trigger,
	})
}

// RunWithRetry executes req and retries it with exponential backoff while the
// failure is retryable. Every attempt keeps the same run date.
func (s *Scheduler) RunWithRetry(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error) {
	attempts := s.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		resp *operations.RunResponse
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err = s.runOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !s.shouldRetry(ctx, err) || attempt == attempts {
			break
		}

		delay := s.backoff(attempt)
		s.logger.WarnContext(ctx, "run_retry_scheduled",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if s.metrics != nil {
			s.metrics.RunRetries.Add(ctx, 1, metric.WithAttributes(
				attribute.String("trigger", req.Trigger),
				attribute.String("error_type", string(operations.GetErrorType(err)))))
		}

		if werr := s.sleep(ctx, delay); werr != nil {
			break
		}
	}
	return resp, err
}

func (s *Scheduler) runOnce(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	return s.runner.Execute(ctx, req)
}

func (s *Scheduler) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, operations.ErrRunInProgress) {
		return false
	}
	return operations.IsRetryable(err)
}

// backoff returns the wait after the given failed attempt
func (s *Scheduler) backoff(attempt int) time.Duration {
	r := s.cfg.Retry
	multiplier := r.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(r.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

func (s *Scheduler) scheduledRun() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := s.Trigger(ctx, operations.TriggerSchedule)
	if err != nil {
		infrastructure.WithError(s.logger, err).ErrorContext(ctx, "scheduled_run_failed")
		return
	}
	s.logger.InfoContext(ctx, "scheduled_run_finished",
		slog.String("run_id", resp.ID),
		slog.String("status", string(resp.Status)),
		slog.Time("next_run", s.NextRun()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cronLogger routes cron's internal logging through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
