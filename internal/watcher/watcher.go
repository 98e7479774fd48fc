// Package watcher watches the data directory with fsnotify and reports,
// debounced, which system output file changed. Serving mode uses this to
// drop cached alignments that no longer match the file on disk.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches one data directory and invokes a callback per changed
// system file.
type Watcher struct {
	dir         string
	ignore      map[string]struct{} // file names that are not system outputs
	onChange    func(system string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger // optional; when set, logs debug events
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over dir. onChange receives the changed system's
// file name once per burst of writes; names in ignore never trigger it.
func New(dir string, ignore []string, onChange func(system string), opts ...Option) *Watcher {
	w := &Watcher{
		dir:         filepath.Clean(dir),
		ignore:      make(map[string]struct{}, len(ignore)),
		onChange:    onChange,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, name := range ignore {
		w.ignore[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("dir", w.dir))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if _, skip := w.ignore[name]; skip || strings.HasPrefix(name, ".") {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("file", name))
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Rename):
		w.debounceChange(name)
	case ev.Op.Has(fsnotify.Remove):
		w.cancelDebounce(name)
		if w.onChange != nil {
			w.onChange(name)
		}
	}
}

func (w *Watcher) debounceChange(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[name]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, name)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("system file changed (debounced)", zap.String("file", name))
		}
		if w.onChange != nil {
			w.onChange(name)
		}
	})
	w.debounceMap[name] = t
}

func (w *Watcher) cancelDebounce(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[name]; ok {
		t.Stop()
		delete(w.debounceMap, name)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for name, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, name)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
