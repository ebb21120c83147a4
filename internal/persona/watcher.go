package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Catalog  *Catalog
	Logger   *slog.Logger
	Debounce time.Duration
	OnReload func(count int, err error) // optional
}

// Watcher reloads the catalog when persona files in its directory change.
// Bursts of events within the debounce window cause a single reload.
type Watcher struct {
	catalog  *Catalog
	logger   *slog.Logger
	debounce time.Duration
	onReload func(int, error)

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := cfg.Debounce
	if d <= 0 {
		d = defaultDebounce
	}
	return &Watcher{
		catalog:  cfg.Catalog,
		logger:   logger,
		debounce: d,
		onReload: cfg.OnReload,
	}
}

// Start begins watching the catalog directory. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	dir := w.catalog.Dir()
	if dir == "" {
		return fmt.Errorf("persona watcher: catalog has no directory")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("persona watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("persona watcher: watch %s: %w", dir, err)
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx, fw, w.stopCh, w.doneCh)
	w.logger.Info("watching persona directory", "dir", dir)
	return nil
}

// Stop ends the watch loop and waits for it to exit. Cancelling the context
// passed to Start has the same effect.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("persona watcher close failed", "err", err)
		}
	}()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.stopCh == stopCh {
				w.running = false
			}
			w.mu.Unlock()
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !IsPersonaFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("persona file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("persona watcher error", "err", err)
		case <-timer.C:
			err := w.catalog.Reload()
			if err != nil {
				w.logger.Error("persona reload failed", "err", err)
			}
			if w.onReload != nil {
				w.onReload(w.catalog.Len(), err)
			}
		}
	}
}
