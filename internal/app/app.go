package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"healthetl/internal/config"
	"healthetl/internal/history"
	"healthetl/internal/infrastructure"
	"healthetl/internal/loader"
	"healthetl/internal/operations"
	"healthetl/internal/publish"
	"healthetl/internal/scheduler"
	"healthetl/internal/services"
	"healthetl/internal/storage"
	"healthetl/internal/transform"
	handlers "healthetl/internal/transport/http"
	"healthetl/internal/validation"
	ws "healthetl/internal/websocket"
	"healthetl/pkg/contracts"
)

// Application holds the wired pipeline and its outer surfaces
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics

	Sink      storage.Sink
	Manager   *operations.Manager
	History   *history.Store
	Runner    services.Runner
	Scheduler *scheduler.Scheduler

	WebSocketHub  *ws.Hub
	RunService    *services.RunService
	HealthService *services.HealthService
	Server        *http.Server

	// background runs started over HTTP hang off baseCtx
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Option customises an Application before it is wired
type Option func(*Application)

// WithSink replaces the configured storage backend
func WithSink(sink storage.Sink) Option {
	return func(a *Application) { a.Sink = sink }
}

// New loads configuration from path and wires the application
func New(ctx context.Context, path string, opts ...Option) (*Application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewWithConfig(ctx, cfg, logger, opts...)
}

// NewWithConfig wires the application from an already loaded configuration
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("source", cfg.Pipeline.SourcePath),
		slog.String("storage", cfg.Storage.Backend))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
		baseCtx:       baseCtx,
		cancelBase:    cancel,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initializePipeline(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initializeServices(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// initializePipeline builds the four stages, the run manager, the history
// store and the scheduler
func (a *Application) initializePipeline(ctx context.Context) error {
	cfg := a.Config

	if a.Sink == nil {
		sink, err := storage.New(ctx, cfg.Storage, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Sink = sink
	}

	var transformOpts []transform.Option
	if len(cfg.Pipeline.DateLayouts) > 0 {
		transformOpts = append(transformOpts, transform.WithDateLayouts(cfg.Pipeline.DateLayouts...))
	}

	registry, err := operations.NewPipelineRegistry(
		loader.NewWithSheet(cfg.Pipeline.SourcePath, cfg.Pipeline.Sheet, a.Logger),
		validation.NewValidator(a.Logger),
		transform.NewTransformer(a.Logger, transformOpts...),
		publish.NewPublisher(a.Sink, cfg.Pipeline.Namespace, a.Logger),
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	a.WebSocketHub = ws.NewHub(a.Logger)

	opCfg := operations.NewConfig()
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid schedule timezone: %w", err)
	}
	opCfg.Location = loc
	a.Manager = operations.NewManager(a.WebSocketHub, registry, opCfg, a.Logger)
	a.Manager.SetTracer(operations.NewPipelineTracerWith(a.OTelProviders.Tracer, a.Metrics))
	a.Runner = a.Manager

	if cfg.History.Driver != "" {
		store, err := history.Open(ctx, cfg.History, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		a.History = store
		a.Runner = store.Wrap(a.Manager)
	}

	sched, err := scheduler.New(a.Runner, cfg.Schedule, a.Logger, scheduler.WithMetrics(a.Metrics))
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	a.Scheduler = sched
	return nil
}

// initializeServices builds the services and HTTP server of the admin API
func (a *Application) initializeServices(ctx context.Context) error {
	var (
		historyReader services.HistoryReader
		historyPinger services.Pinger
	)
	if a.History != nil {
		historyReader, historyPinger = a.History, a.History
	}

	a.RunService = services.NewRunService(a.baseCtx, a.Runner, a.Manager, a.Manager.GetBroadcaster(),
		historyReader, a.Manager.GetConfig().Today, a.Logger)
	a.HealthService = services.NewHealthService(contracts.Version, a.Manager, historyPinger,
		a.Scheduler, a.WebSocketHub, a.Logger)

	if !a.Config.Server.Enabled {
		return nil
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Server:      a.Config.Server,
		SyncTimeout: min(a.Config.Schedule.RunTimeout, a.Config.Server.WriteTimeout),
		Runs:        a.RunService,
		Health:      a.HealthService,
		Metrics:     a.OTelProviders.PrometheusHTTP,
		WebSocket:   ws.NewHandler(a.WebSocketHub, a.Config.Server.AllowedOrigins, a.Logger),
		Tracer:      a.OTelProviders.Tracer,
		Business:    a.Metrics,
		Logger:      a.Logger,
	})

	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return a.baseCtx },
	}
	a.Logger.InfoContext(ctx, "admin api configured", slog.String("addr", a.Config.Server.Addr))
	return nil
}

// RunOnce executes a single run for date with the scheduler's retry policy.
// A zero date runs for today.
func (a *Application) RunOnce(ctx context.Context, date time.Time, dryRun bool) (*operations.RunResponse, error) {
	if date.IsZero() {
		date = a.Manager.GetConfig().Today()
	}
	return a.Scheduler.RunWithRetry(ctx, operations.RunRequest{
		RunDate: date,
		Trigger: operations.TriggerCLI,
		DryRun:  dryRun,
	})
}

// Serve runs the scheduler, the optional source watcher and the admin API
// until ctx is cancelled, then shuts everything down.
func (a *Application) Serve(ctx context.Context) error {
	a.WebSocketHub.Start()
	a.Scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if a.Config.Schedule.WatchSource {
		g.Go(func() error {
			err := a.Scheduler.WatchSource(gctx, a.Config.Pipeline.SourcePath)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("source watcher: %w", err)
			}
			return nil
		})
	}

	if a.Server != nil {
		g.Go(func() error {
			a.Logger.InfoContext(gctx, "admin api listening", slog.String("addr", a.Server.Addr))
			if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin api: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// shutdown stops the outer surfaces first so no new runs start, then waits
// for in-flight work.
func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	a.Logger.InfoContext(ctx, "shutting down")

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin api shutdown: %w", err))
		}
	}
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	a.cancelBase()
	a.RunService.Wait()
	a.WebSocketHub.Stop()
	return errors.Join(errs...)
}

// Close releases the history database and flushes telemetry
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.cancelBase != nil {
		a.cancelBase()
	}
	if a.Manager != nil {
		a.Manager.Close()
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
