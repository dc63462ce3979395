package files

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of filesystem events into one callback.
const DefaultDebounce = 250 * time.Millisecond

// Watch calls onChange whenever an entry under the root is created, removed
// or renamed. It blocks until ctx is done.
func (r *Resolver) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer func() { _ = w.Close() }()

	err = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			r.logger.Debug("watch directory", zap.String("path", p), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk root")
	}

	d := &debouncer{interval: debounce, fire: onChange}
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && within(ev.Name, r.root) {
					_ = w.Add(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				d.trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	fire     func()
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interval <= 0 {
		go d.fire()
		return
	}
	if d.timer != nil {
		return
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fire()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
