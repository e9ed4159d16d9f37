// Package watch re-runs preprocessing when source notebooks change.
package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nbprep/internal/logging"
	"nbprep/internal/notebook"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called with the path of a source notebook that changed.
type Handler func(ctx context.Context, path string)

// Stats counts watcher activity.
type Stats struct {
	Events        int
	Handled       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches directories for writes to source notebooks and calls a
// handler once per file after its writes settle. Handlers run one at a time
// on the watcher's goroutine.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dirs        []string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	stats       Stats
}

// New creates a Watcher for dirs. A zero debounce uses DefaultDebounce.
func New(dirs []string, debounce time.Duration, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:     fw,
		dirs:        dirs,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return errors.New("watcher already stopped")
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			logging.Get(logging.CategoryWatch).Warn("cannot watch %s: %v", dir, err)
			continue
		}
		logging.WatchDebug("watching directory: %s", dir)
	}
	logging.Watch("watching %d directories", len(w.dirs))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit. It is safe
// to call after the context passed to Start was cancelled, without Start,
// and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.running
	w.running = false
	w.mu.Unlock()

	if started {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.WatchDebug("stopped")
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

// handleEvent records writes to source notebooks. Atomic saves show up as a
// create of the final name, so creates count as writes.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, notebook.SourceSuffix+notebook.Ext) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	logging.WatchDebug("%s event for %s", event.Op, event.Name)

	w.mu.Lock()
	now := time.Now()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = now
	w.debounceMap[event.Name] = now
	w.mu.Unlock()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		logging.Watch("changed: %s", path)
		w.handler(ctx, path)
		w.mu.Lock()
		w.stats.Handled++
		w.mu.Unlock()
	}
}
