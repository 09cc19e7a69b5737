package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// ReloadFunc receives each successfully loaded and validated configuration.
type ReloadFunc func(*GatewayConfig)

// Watcher re-reads the configuration file when it changes on disk.
type Watcher struct {
	path     string
	fs       *fsnotify.Watcher
	onReload ReloadFunc
	onError  func(error)
	logger   observability.Logger
	debounce time.Duration

	mu      sync.Mutex
	last    *GatewayConfig
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long to wait for writes to settle.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = delay
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback is called when a reload fails to load or validate.
func WithErrorCallback(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		fs:       fsw,
		onReload: onReload,
		logger:   observability.NopLogger(),
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the file's directory so editors that replace the file
// through a rename are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.fs.Close()
		return err
	}

	w.logger.Info("watching configuration file", observability.String("path", w.path))

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.fs.Close()
}

// LastConfig returns the most recent configuration applied by the watcher.
func (w *Watcher) LastConfig() *GatewayConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail("config watcher error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.fail("failed to load configuration", err)
		return
	}
	if err := ValidateConfig(cfg); err != nil {
		w.fail("configuration validation failed", err)
		return
	}

	w.mu.Lock()
	w.last = cfg
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", observability.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) fail(msg string, err error) {
	w.logger.Error(msg, observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}
