package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// CatalogWatcher hot-reloads the tool-server catalog file into the store.
// Running sessions keep their existing bindings; the new catalog applies to
// sessions created afterwards.
type CatalogWatcher struct {
	store   *SQLiteStore
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewCatalogWatcher creates a watcher for the catalog file at path.
func NewCatalogWatcher(store *SQLiteStore, path string, logger zerolog.Logger) *CatalogWatcher {
	return &CatalogWatcher{
		store:  store,
		path:   path,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start loads the catalog once, then watches for changes.
func (w *CatalogWatcher) Start(ctx context.Context) error {
	if err := w.reload(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch catalog file: %w", err)
	}
	w.watcher = watcher

	go w.run(ctx)

	w.logger.Info().Str("path", w.path).Msg("Catalog watcher started")
	return nil
}

func (w *CatalogWatcher) run(ctx context.Context) {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors fire several events per save; debounce them.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := w.reload(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("Catalog reload failed, keeping previous catalog")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Catalog watcher error")
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *CatalogWatcher) reload(ctx context.Context) error {
	descriptors, err := LoadCatalogFile(w.path)
	if err != nil {
		return err
	}
	return w.store.ReplaceToolServers(ctx, descriptors)
}

// Stop stops watching. Safe to call once.
func (w *CatalogWatcher) Stop() error {
	close(w.stopCh)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
