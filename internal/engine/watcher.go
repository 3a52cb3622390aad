package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// RulesWatcher watches a rules override file and hot-reloads it into the
// engine. A file that fails to compile never replaces the active rules.
type RulesWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	engine      *Engine
	path        string
	debounceDur time.Duration
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewRulesWatcher creates a watcher for the given override file.
func NewRulesWatcher(path string, eng *Engine) (*RulesWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &RulesWatcher{
		watcher:     watcher,
		engine:      eng,
		path:        filepath.Clean(path),
		debounceDur: 500 * time.Millisecond, // coalesce rapid editor saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; if the file already exists it is
// loaded immediately.
func (rw *RulesWatcher) Start(ctx context.Context) error {
	rw.mu.Lock()
	if rw.running {
		rw.mu.Unlock()
		return nil
	}
	rw.running = true
	rw.mu.Unlock()

	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		return err
	}
	if _, err := os.Stat(rw.path); err == nil {
		rw.reload()
	}

	go rw.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (rw *RulesWatcher) Stop() {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		return
	}
	rw.running = false
	rw.mu.Unlock()

	close(rw.stopCh)
	<-rw.doneCh
	rw.watcher.Close()
}

func (rw *RulesWatcher) loop(ctx context.Context) {
	defer close(rw.doneCh)
	log := logging.Get(logging.CategoryEngine)

	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != rw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rw.mu.Lock()
			if time.Since(rw.lastEvent) < rw.debounceDur {
				rw.mu.Unlock()
				continue
			}
			rw.lastEvent = time.Now()
			rw.mu.Unlock()
			rw.reload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("rules watcher error: %v", err)
		}
	}
}

func (rw *RulesWatcher) reload() {
	log := logging.Get(logging.CategoryEngine)
	data, err := os.ReadFile(rw.path)
	if err != nil {
		log.Warn("rules override read failed for %s: %v", rw.path, err)
		return
	}
	if err := rw.engine.SetRules(string(data)); err != nil {
		log.Error("rules override rejected, keeping last good rules: %v", err)
		return
	}
	log.Info("rules override loaded from %s (%d bytes)", rw.path, len(data))
}
