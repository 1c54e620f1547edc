package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"Sherpa/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	path     string
	onReload func(Config)
	delay    time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
}

// NewWatcher creates a watcher for path. onReload receives every config that loads and validates.
func NewWatcher(path string, onReload func(Config)) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		delay:    300 * time.Millisecond,
	}
}

// Start begins watching the directory that holds the config file.
// The directory is watched rather than the file so atomic saves (write + rename) are seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	logger.LogInfo("config").Str("path", w.path).Msg("Watching config file")

	go w.watch(watcher, w.stopCh, w.doneCh)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
	w.watcher = nil
}

func (w *Watcher) watch(watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var debounceTimer *time.Timer
	target := filepath.Clean(w.path)

	for {
		select {
		case <-stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.delay, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.LogError("config").Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.LogWarn("config").Err(err).Str("path", w.path).Msg("Ignoring invalid config change")
		return
	}

	logger.LogInfo("config").Str("path", w.path).Msg("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
