// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// DefaultDebounce is the quiet period after the last change before an event is emitted.
const DefaultDebounce = 500 * time.Millisecond

// FSNotifyWatcher reports changes to a fixed set of file names inside one
// directory. Bursts of raw events (editors write, chmod and rename on save)
// are coalesced per file into a single FileEvent.
type FSNotifyWatcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]struct{}
	debounce time.Duration
	logger   *zap.Logger
}

// NewFSNotifyWatcher creates a watcher for the given base names. Empty names
// default to the models config pair; debounce <= 0 uses DefaultDebounce.
func NewFSNotifyWatcher(names []string, debounce time.Duration, logger *zap.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = []string{"config.json", "config.default.json"}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return &FSNotifyWatcher{watcher: w, names: set, debounce: debounce, logger: logger}, nil
}

// pending tracks one file's burst between the first raw event and the flush.
type pending struct {
	created bool
	due     time.Time
}

// Watch starts monitoring dir. The returned channel is closed when ctx ends
// or the watcher is stopped.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, len(w.names))
	go w.loop(ctx, dir, events)
	return events, nil
}

func (w *FSNotifyWatcher) loop(ctx context.Context, dir string, out chan<- ports.FileEvent) {
	defer close(out)

	bursts := make(map[string]*pending)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.names[filepath.Base(ev.Name)]; !watched {
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			p, ok := bursts[ev.Name]
			if !ok {
				p = &pending{}
				bursts[ev.Name] = p
			}
			if ev.Has(fsnotify.Create) {
				p.created = true
			}
			p.due = time.Now().Add(w.debounce)
			timer.Reset(w.debounce)

		case <-timer.C:
			now := time.Now()
			var next time.Duration
			for path, p := range bursts {
				if wait := p.due.Sub(now); wait > 0 {
					if next == 0 || wait < next {
						next = wait
					}
					continue
				}
				delete(bursts, path)
				select {
				case out <- ports.FileEvent{Path: path, Operation: settle(path, p)}:
				case <-ctx.Done():
					return
				}
			}
			if next > 0 {
				timer.Reset(next)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// settle decides the reported operation from the file's state after the burst.
func settle(path string, p *pending) ports.FileOperation {
	if _, err := os.Stat(path); err != nil {
		return ports.FileDeleted
	}
	if p.created {
		return ports.FileCreated
	}
	return ports.FileModified
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}
