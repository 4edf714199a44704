package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configSettleDelay lets editors finish multi-step saves before restarting.
const configSettleDelay = 250 * time.Millisecond

// watchConfig sends a restart action once the file at path changes. The
// parent directory is watched rather than the file itself, since atomic
// writes replace the file and would drop a watch on it. The watcher stops
// when ctx is done or after the first restart it requests.
func watchConfig(ctx context.Context, path string, actionChan chan<- string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err = watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer func(watcher *fsnotify.Watcher) {
			_ = watcher.Close()
		}(watcher)

		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					settle = time.After(configSettleDelay)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", "error", err)
			case <-settle:
				logger.Info("Config file changed, restarting", slog.String("path", target))
				select {
				case actionChan <- actionRestart:
				default: // An action is already pending.
				}
				return
			}
		}
	}()
	return nil
}
