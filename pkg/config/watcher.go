package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives a freshly loaded pipeline.
type ReloadFunc func(ctx context.Context, p *Pipeline) error

// Watcher reloads a pipeline file whenever it changes.
type Watcher struct {
	loader *Loader
	logger zerolog.Logger
	delay  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher that reloads through loader. Bursts of
// events closer together than delay trigger a single reload; zero selects
// 500ms.
func NewWatcher(loader *Loader, logger zerolog.Logger, delay time.Duration) *Watcher {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Watcher{
		loader: loader,
		logger: logger.With().Str("component", "pipeline-watcher").Logger(),
		delay:  delay,
	}
}

// Watch starts watching path and calls reloadFn after every change until
// ctx is done or Stop is called. The directory holding path is watched so
// that editors replacing the file are noticed. Load and reload errors are
// logged.
func (w *Watcher) Watch(ctx context.Context, path string, reloadFn ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, watcher, abs, reloadFn)

	w.logger.Info().Str("path", abs).Msg("Started watching pipeline")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, reloadFn ReloadFunc) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Pipeline file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.delay, func() {
				if err := w.reload(ctx, path, reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload pipeline")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, path string, reloadFn ReloadFunc) error {
	p, err := w.loader.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	if err := reloadFn(ctx, p); err != nil {
		return fmt.Errorf("failed to apply reloaded pipeline: %w", err)
	}

	w.logger.Info().Str("pipeline", p.Name).Msg("Pipeline reloaded")
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
