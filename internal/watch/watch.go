// Package watch implements component N: re-invoking the pipeline when a
// map's .map file or any of its enumerated asset directories change on
// disk, for iterative mapping workflows.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long the driver waits after the last observed event
// before invoking the rebuild callback, coalescing a burst of saves (an
// editor writing several textures in quick succession) into one rebuild.
const Debounce = 400 * time.Millisecond

// Driver watches a fixed set of paths and invokes Rebuild on change.
type Driver struct {
	watcher *fsnotify.Watcher
	rebuild func(context.Context) error
	onError func(error)

	mu    sync.Mutex
	timer *time.Timer
}

// NewDriver constructs a Driver watching mapPath plus every directory in
// dirs (typically a map's enumerated AssetDirectories), invoking rebuild on
// change. Setup failures are returned by NewDriver. onError, if non-nil,
// receives errors from a failed rebuild or from the running watcher; a nil
// onError silently drops them.
func NewDriver(mapPath string, dirs []string, rebuild func(context.Context) error, onError func(error)) (*Driver, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	d := &Driver{watcher: w, rebuild: rebuild, onError: onError}

	if err := w.Add(mapPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", mapPath, err)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return d, nil
}

// Run blocks, watching for filesystem events and debouncing them into
// rebuild invocations, until ctx is canceled.
func (d *Driver) Run(ctx context.Context) error {
	defer d.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			if d.timer != nil {
				d.timer.Stop()
			}
			d.mu.Unlock()
			return ctx.Err()

		case ev, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				d.scheduleRebuild(ctx)
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.reportError(err)
		}
	}
}

func (d *Driver) scheduleRebuild(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(Debounce, func() {
		if err := d.rebuild(ctx); err != nil {
			d.reportError(err)
		}
	})
}

func (d *Driver) reportError(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}
