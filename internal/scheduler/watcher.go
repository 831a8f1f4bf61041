package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"healthetl/internal/infrastructure"
	"healthetl/internal/operations"
)

// SourceWatcher calls its trigger after the source snapshot is rewritten.
// Bursts of writes within the debounce window collapse into one call.
type SourceWatcher struct {
	path     string
	debounce time.Duration
	trigger  func(ctx context.Context)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewSourceWatcher starts watching the directory holding path
func NewSourceWatcher(path string, debounce time.Duration, trigger func(ctx context.Context), logger *slog.Logger) (*SourceWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Directory watches survive the file being replaced
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	return &SourceWatcher{
		path:     absPath,
		debounce: debounce,
		trigger:  trigger,
		watcher:  watcher,
		logger:   infrastructure.WithComponent(logger, "source_watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher
func (w *SourceWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.InfoContext(ctx, "source_watch_started", slog.String("path", w.path))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			w.logger.InfoContext(ctx, "source_changed", slog.String("path", w.path))
			w.trigger(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "source_watch_error", slog.String("error", err.Error()))
		}
	}
}

// WatchSource runs a SourceWatcher on path that triggers retried runs until
// ctx is cancelled.
func (s *Scheduler) WatchSource(ctx context.Context, path string) error {
	w, err := NewSourceWatcher(path, s.cfg.WatchDebounce, func(ctx context.Context) {
		resp, err := s.Trigger(ctx, operations.TriggerWatch)
		if err != nil {
			infrastructure.WithError(s.logger, err).ErrorContext(ctx, "watch_run_failed")
			return
		}
		s.logger.InfoContext(ctx, "watch_run_finished",
			slog.String("run_id", resp.ID),
			slog.String("status", string(resp.Status)))
	}, s.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
