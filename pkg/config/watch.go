package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the file at path whenever it is written or recreated and
// passes each valid result to onChange. A file that fails to load is
// logged and ignored; the previous configuration stays in effect. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func(*Config)) error {
	return watch(ctx, path, DefaultDebounce, logger, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, logger logging.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = logging.Default()
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file instead of writing it, so the
	// directory is watched.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	logger = logger.WithFields(logging.String("component", "config"), logging.String("path", path))
	logger.Info("watching config file")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", logging.ErrorField(err))

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("ignoring invalid config", logging.ErrorField(err))
				continue
			}
			logger.Info("config reloaded", logging.Int("servers", len(cfg.Servers)))
			onChange(cfg)
		}
	}
}
