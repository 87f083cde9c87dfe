package controller

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a set of signature directories and reports files edited
// outside the editor — signatures are frequently hand-edited in a
// separate terminal from the code under test, unlike source files which
// always arrive via textDocument/didChange. It never touches a Controller
// directly: changes are handed to notify, which the master runs on its
// own event-loop goroutine, preserving the "controller touched only from
// the event loop" invariant.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	notify      func(path string)
	logger      *zap.Logger
	debounce    time.Duration
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher returns a Watcher over dirs that calls notify, debounced by
// the given duration, for each settled change.
func NewWatcher(dirs []string, debounce time.Duration, notify func(path string), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("signature directory not watchable", zap.String("dir", dir), zap.Error(err))
		}
	}
	return &Watcher{
		watcher:     fsw,
		notify:      notify,
		logger:      logger,
		debounce:    debounce,
		debounceMap: map[string]time.Time{},
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start runs the watch loop in its own goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop closes the watcher and waits for the loop goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 2)
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.debounceMap[event.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("signature watcher error", zap.Error(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	settled := []string{}
	for path, seen := range w.debounceMap {
		if now.Sub(seen) >= w.debounce {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.logger.Debug("signature file changed externally", zap.String("path", path))
		w.notify(path)
	}
}
