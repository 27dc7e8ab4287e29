package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/db"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

const metaBuildID = "build_id"

// Load opens the artifact pair in dir. It returns ErrNotFound when either
// file is missing and ErrCorrupt when they do not belong to the same build.
func Load(dir string) (*Store, error) {
	indexPath := filepath.Join(dir, IndexFile)
	sidecarPath := filepath.Join(dir, SidecarFile)

	// Stat before reading so the recorded version never runs ahead of the
	// content actually loaded.
	info, err := os.Stat(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, indexPath)
		}
		return nil, fmt.Errorf("knowledge: stat index: %w", err)
	}

	sc, err := readSidecar(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sidecarPath)
		}
		return nil, err
	}

	database, err := db.OpenReadOnly(indexPath)
	if err != nil {
		if errors.Is(err, db.ErrNoIndex) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, indexPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	buildID, err := database.Meta(metaBuildID)
	if err != nil || buildID != sc.BuildID {
		database.Close()
		return nil, fmt.Errorf("%w: index build %q, sidecar build %q", ErrCorrupt, buildID, sc.BuildID)
	}
	dim, err := database.Dimension()
	if err != nil || dim != sc.Dimension {
		database.Close()
		return nil, fmt.Errorf("%w: index dimension %d, sidecar dimension %d", ErrCorrupt, dim, sc.Dimension)
	}

	return newStore(dir, info.ModTime(), sc, database), nil
}

// diskVersion reads the current freshness token of the artifact in dir.
func diskVersion(dir string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(dir, IndexFile))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// CheckFreshness reports Stale when the index on disk is strictly newer
// than the one s was loaded from. An unreadable disk token counts as Fresh.
func CheckFreshness(s *Store) Freshness {
	v, err := diskVersion(s.path)
	if err != nil {
		return Fresh
	}
	if v.After(s.version) {
		return Stale
	}
	return Fresh
}

// ReloadIfStale returns a newly loaded store when s is stale and s itself
// otherwise. When the reload fails s is returned together with the error.
func ReloadIfStale(s *Store) (*Store, error) {
	if CheckFreshness(s) == Fresh {
		return s, nil
	}
	next, err := Load(s.path)
	if err != nil {
		return s, err
	}
	return next, nil
}

// Manager holds the current store for one artifact directory and swaps it
// when the artifact changes. Reads are lock free; loads are serialised.
type Manager struct {
	dir     string
	log     *zap.Logger
	current atomic.Pointer[Store]
	mu      sync.Mutex

	// lastErr suppresses repeated logging of the same load failure.
	lastErr string
	// failedVersion is the disk token of the last artifact that failed to
	// load. It is not retried until the token changes.
	failedVersion time.Time

	load func(dir string) (*Store, error)
}

// NewManager creates a manager for dir. Nothing is loaded until the first
// ReloadIfStale or Acquire.
func NewManager(dir string, log *zap.Logger) *Manager {
	return &Manager{dir: dir, log: logging.OrNop(log).Named("knowledge"), load: Load}
}

// Dir returns the artifact directory.
func (m *Manager) Dir() string { return m.dir }

// Current returns the current store without checking freshness. It may be nil.
func (m *Manager) Current() *Store { return m.current.Load() }

// State reports the lifecycle state of the current store.
func (m *Manager) State() State {
	s := m.current.Load()
	if s == nil {
		return StateUnloaded
	}
	if CheckFreshness(s) == Stale {
		return StateStale
	}
	return StateReady
}

// Info summarises the current store.
func (m *Manager) Info() Info {
	info := Info{Path: m.dir, State: m.State()}
	if s := m.current.Load(); s != nil {
		info.VectorCount = s.VectorCount()
		info.Version = s.LoadedAtVersion()
		info.EmbedModel = s.EmbedModel()
		info.Dimension = s.Dimension()
	}
	return info
}

// ReloadIfStale loads the store when none is loaded, reloads it when the
// disk artifact is newer, and returns the resulting current store. A failed
// reload drops the stale store, so the result is nil until an artifact with
// a new disk token loads. Readers holding the dropped store keep it open
// until they release it.
func (m *Manager) ReloadIfStale() *Store {
	cur := m.current.Load()
	if cur != nil && CheckFreshness(cur) == Fresh {
		return cur
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have swapped while we waited.
	cur = m.current.Load()
	if cur != nil && CheckFreshness(cur) == Fresh {
		return cur
	}

	v, verr := diskVersion(m.dir)
	if verr == nil && cur == nil && !m.failedVersion.IsZero() && v.Equal(m.failedVersion) {
		return nil
	}

	next, err := m.load(m.dir)
	if err != nil {
		m.logLoadError(err, cur != nil)
		if verr == nil && !errors.Is(err, ErrNotFound) {
			m.failedVersion = v
		}
		if cur != nil {
			m.current.Store(nil)
			cur.release()
		}
		return nil
	}
	m.lastErr = ""
	m.failedVersion = time.Time{}

	m.current.Store(next)
	if cur == nil {
		m.log.Info("store loaded",
			zap.String("path", m.dir),
			zap.Int("vectors", next.VectorCount()),
			zap.Time("version", next.LoadedAtVersion()))
		return next
	}

	m.log.Info("store reloaded",
		zap.String("path", m.dir),
		zap.Int("vectors", next.VectorCount()),
		zap.Time("previous_version", cur.LoadedAtVersion()),
		zap.Time("version", next.LoadedAtVersion()))
	cur.release()
	return next
}

func (m *Manager) logLoadError(err error, haveStore bool) {
	msg := err.Error()
	if msg == m.lastErr {
		return
	}
	m.lastErr = msg

	switch {
	case errors.Is(err, ErrNotFound) && !haveStore:
		m.log.Debug("no store available", zap.String("path", m.dir), zap.Error(err))
	case haveStore:
		m.log.Warn("store reload failed, dropping stale store", zap.String("path", m.dir), zap.Error(err))
	default:
		m.log.Warn("store load failed", zap.String("path", m.dir), zap.Error(err))
	}
}

// Acquire refreshes the store and returns it with a release func. The store
// stays open until release is called even if a reload swaps it out.
// It returns nil and a no-op release when no store is available.
func (m *Manager) Acquire() (*Store, func()) {
	for i := 0; i < 3; i++ {
		s := m.ReloadIfStale()
		if s == nil {
			return nil, func() {}
		}
		if s.acquire() {
			var once sync.Once
			return s, func() { once.Do(s.release) }
		}
		// Lost a race with a swap that already closed s; retry with the new one.
	}
	return nil, func() {}
}

// Close releases the current store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current.Swap(nil)
	if s == nil {
		return nil
	}
	return s.Close()
}
