package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDelay coalesces bursts of writes to the config file.
const ReloadDelay = 150 * time.Millisecond

// Watch reloads path whenever it changes and passes the new configuration to
// onChange. Invalid files are logged and skipped. The parent directory is
// watched so editors that replace the file are followed. Watching stops
// when ctx ends.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reload = time.After(ReloadDelay)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher", slog.Any("error", err))
			case <-reload:
				reload = nil
				cfg, err := Load(abs)
				if err != nil {
					log.Warn("config reload failed", slog.String("path", abs), slog.Any("error", err))
					continue
				}
				log.Info("config reloaded", slog.String("path", abs))
				onChange(cfg)
			}
		}
	}()
	return nil
}
