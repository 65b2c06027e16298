package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watch calls fn with the enabled server names (or the read error) after
// every burst of changes to the registry file. It blocks until ctx is done.
func (d *Discovery) Watch(ctx context.Context, fn func(names []string, err error)) error {
	return d.watch(ctx, defaultWatchDebounce, fn)
}

func (d *Discovery) watch(ctx context.Context, debounce time.Duration, fn func([]string, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating registry watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("registry watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRegistryEvent(event.Name, d.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case <-timerChan(timer):
			timer = nil
			names, err := d.ListServers(false)
			d.logger.Info("registry changed",
				telemetry.EventField(telemetry.EventRegistryChange),
				zap.Strings("servers", names),
				zap.Error(err),
			)
			fn(names, err)
		}
	}
}

func isRegistryEvent(name, registry string) bool {
	if name == "" || registry == "" {
		return false
	}
	return filepath.Clean(name) == filepath.Clean(registry)
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
