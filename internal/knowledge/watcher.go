package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events a rebuild produces.
const DefaultDebounce = 300 * time.Millisecond

// Watcher refreshes a Manager eagerly when the index file changes on disk.
// The freshness check on the read path remains authoritative; the watcher
// only moves the reload off the first query after an ingestion.
type Watcher struct {
	m        *Manager
	debounce time.Duration
	onReload func(*Store)
}

// NewWatcher creates a watcher for m. A zero debounce uses DefaultDebounce.
func NewWatcher(m *Manager, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{m: m, debounce: debounce}
}

// OnReload registers fn to be called after each debounced refresh with the
// resulting current store (possibly nil). Must be called before Run.
func (w *Watcher) OnReload(fn func(*Store)) {
	w.onReload = fn
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	dir := w.m.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge: watch: create dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("knowledge: watch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("knowledge: watch %s: %w", dir, err)
	}
	w.m.log.Debug("watching store", zap.String("path", dir))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != IndexFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.m.log.Warn("store watcher error", zap.Error(err))

		case <-timer.C:
			s := w.m.ReloadIfStale()
			if w.onReload != nil {
				w.onReload(s)
			}
		}
	}
}
