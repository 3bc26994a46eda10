package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marionette/marionette/pkg/logger"
)

// ManifestWatcher reports changes to a set of manifest files. Rapid
// write bursts are coalesced with a settling delay so a change is
// reported once per editor save, not once per write syscall.
type ManifestWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logger.Logger
	paths    map[string]bool
	settling time.Duration
	onChange func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// DefaultSettlingDelay is the quiet period before a change fires
const DefaultSettlingDelay = 200 * time.Millisecond

// NewManifestWatcher creates a watcher over the discoverer's manifest
// paths. onChange is invoked from a background goroutine with the
// absolute path that settled.
func NewManifestWatcher(log logger.Logger, d *FileDiscoverer, onChange func(path string)) (*ManifestWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	w := &ManifestWatcher{
		watcher:  fsWatcher,
		logger:   log,
		paths:    make(map[string]bool),
		settling: DefaultSettlingDelay,
		onChange: onChange,
		pending:  make(map[string]*time.Timer),
	}

	// Watch the parent directories; editors often replace files by
	// rename, which drops the watch on the file itself.
	dirs := make(map[string]bool)
	for _, path := range d.Paths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start runs the event loop until the context ends or Close is called
func (w *ManifestWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logger.WithField("error", err))
		}
	}
}

// Close stops the watcher and cancels pending settling timers
func (w *ManifestWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()

	return w.watcher.Close()
}

// Private methods

func (w *ManifestWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.paths[abs] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[abs]; ok {
		timer.Stop()
	}
	w.pending[abs] = time.AfterFunc(w.settling, func() {
		w.mu.Lock()
		delete(w.pending, abs)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.logger.Debug("Manifest changed", logger.WithField("path", abs))
		if w.onChange != nil {
			w.onChange(abs)
		}
	})
}
