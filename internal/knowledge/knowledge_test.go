package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, text string, vec ...float32) Record {
	return Record{Passage: Passage{ID: id, Text: text, Source: "cookbook.md"}, Embedding: vec}
}

func sampleRecords() []Record {
	return []Record{
		rec("salt", "Salt enhances flavor and should be added early to meat.", 1, 0, 0),
		rec("acid", "Acid brightens a dish; a squeeze of lemon balances fat.", 0, 1, 0),
		rec("heat", "Heat transforms texture; roast vegetables at high temperature.", 0, 0, 1),
	}
}

func buildStore(t *testing.T, dir string, records []Record) {
	t.Helper()
	require.NoError(t, Build(dir, records, BuildOptions{EmbedModel: "test-embed", Dimension: 3}))
}

func loadStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrNotFound)

	// Index without sidecar is still not found.
	buildStore(t, dir, sampleRecords())
	require.NoError(t, os.Remove(filepath.Join(dir, SidecarFile)))
	_, err = Load(dir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_SidecarOnly(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	require.NoError(t, os.Remove(filepath.Join(dir, IndexFile)))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_MismatchedPairIsCorrupt(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	buildStore(t, a, sampleRecords())
	buildStore(t, b, sampleRecords())

	// Sidecar from one build next to the index of another.
	data, err := os.ReadFile(filepath.Join(b, SidecarFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(a, SidecarFile), data, 0o644))

	_, err = Load(a)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_GarbageSidecarIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), []byte("{not json"), 0o644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBuildAndLoad(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())

	s := loadStore(t, dir)
	assert.Equal(t, 3, s.VectorCount())
	assert.Equal(t, 3, s.Dimension())
	assert.Equal(t, "test-embed", s.EmbedModel())
	assert.Equal(t, dir, s.Path())

	info, err := os.Stat(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.True(t, s.LoadedAtVersion().Equal(info.ModTime()))

	p, ok := s.Passage("acid")
	require.True(t, ok)
	assert.Contains(t, p.Text, "lemon")

	// No temp build directories left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBuild_Validation(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, Build(dir, nil, BuildOptions{}), "unknown dimension")
	assert.Error(t, Build(dir, []Record{rec("a", "x", 1, 2), rec("b", "y", 1)}, BuildOptions{}), "ragged")
	assert.Error(t, Build(dir, []Record{rec("a", "x", 1), rec("a", "y", 1)}, BuildOptions{}), "duplicate")
	assert.Error(t, Build(dir, []Record{rec("", "x", 1)}, BuildOptions{}), "missing id")
}

func TestBuild_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Build(dir, nil, BuildOptions{Dimension: 3}))

	s := loadStore(t, dir)
	assert.Equal(t, 0, s.VectorCount())

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_OrdersByDistance(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	matches, err := s.Search(context.Background(), []float32{0.1, 0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "acid", matches[0].Passage.ID)
	assert.Equal(t, "salt", matches[1].Passage.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.LessOrEqual(t, matches[0].Score, 1.0)
}

func TestSearch_KLargerThanStore(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	_, err := s.Search(context.Background(), []float32{1, 0}, 2)
	assert.Error(t, err)
}

func TestSearchText(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	matches := s.SearchText("How much LEMON acid should I add?", 3)
	require.NotEmpty(t, matches)
	assert.Equal(t, "acid", matches[0].Passage.ID)

	assert.Empty(t, s.SearchText("zzz qqq", 3))
	assert.Empty(t, s.SearchText("", 3))
}

func TestCheckFreshness(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)
	index := filepath.Join(dir, IndexFile)

	assert.Equal(t, Fresh, CheckFreshness(s))
	assert.Equal(t, Fresh, CheckFreshness(s), "checking again without a change stays fresh")

	touch(t, index, s.LoadedAtVersion().Add(-time.Hour))
	assert.Equal(t, Fresh, CheckFreshness(s), "older disk token is not stale")

	touch(t, index, s.LoadedAtVersion().Add(time.Hour))
	assert.Equal(t, Stale, CheckFreshness(s))

	require.NoError(t, os.Remove(index))
	assert.Equal(t, Fresh, CheckFreshness(s), "unreadable disk token counts as fresh")
}

func TestReloadIfStale(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	same, err := ReloadIfStale(s)
	require.NoError(t, err)
	assert.Same(t, s, same)

	buildStore(t, dir, sampleRecords()[:2])
	next, err := ReloadIfStale(s)
	require.NoError(t, err)
	require.NotSame(t, s, next)
	defer next.Close()

	assert.Equal(t, 2, next.VectorCount())
	assert.Equal(t, 3, s.VectorCount(), "old handle is not mutated")
	assert.True(t, next.LoadedAtVersion().After(s.LoadedAtVersion()))
}

func TestReloadIfStale_FailureKeepsOld(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	s := loadStore(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), []byte("garbage"), 0o644))
	touch(t, filepath.Join(dir, IndexFile), s.LoadedAtVersion().Add(time.Hour))

	got, err := ReloadIfStale(s)
	assert.Error(t, err)
	assert.Same(t, s, got)
}

func TestManager_Unloaded(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	defer m.Close()

	assert.Equal(t, StateUnloaded, m.State())
	assert.Nil(t, m.ReloadIfStale())

	s, release := m.Acquire()
	assert.Nil(t, s)
	release()
}

func TestManager_LoadsLazily(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)
	defer m.Close()

	assert.Nil(t, m.ReloadIfStale())

	buildStore(t, dir, sampleRecords())
	s := m.ReloadIfStale()
	require.NotNil(t, s)
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, 3, m.Info().VectorCount)
}

func TestManager_VersionIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	m := NewManager(dir, nil)
	defer m.Close()

	prev := m.ReloadIfStale()
	require.NotNil(t, prev)

	for i := 0; i < 4; i++ {
		if i%2 == 0 {
			buildStore(t, dir, sampleRecords()[:1+i%3])
		} else {
			// A failed rebuild must not move the token backwards.
			require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), []byte("x"), 0o644))
			touch(t, filepath.Join(dir, IndexFile), prev.LoadedAtVersion().Add(time.Duration(i)*time.Hour))
		}
		cur := m.ReloadIfStale()
		require.NotNil(t, cur)
		assert.False(t, cur.LoadedAtVersion().Before(prev.LoadedAtVersion()),
			"version went backwards at step %d", i)
		prev = cur
	}
}

func TestManager_SwapKeepsInFlightStoreOpen(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	m := NewManager(dir, nil)
	defer m.Close()

	old, release := m.Acquire()
	require.NotNil(t, old)

	buildStore(t, dir, sampleRecords()[:1])
	next := m.ReloadIfStale()
	require.NotSame(t, old, next)
	assert.Equal(t, 1, next.VectorCount())

	// The swapped-out handle still serves the query that holds it.
	matches, err := old.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	release()
	release() // idempotent

	_, err = old.Search(context.Background(), []float32{1, 0, 0}, 3)
	assert.Error(t, err, "old store is closed after its last reference is released")
}

func TestManager_ReloadFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	m := NewManager(dir, nil)
	defer m.Close()

	held, release := m.Acquire()
	require.NotNil(t, held)
	defer release()

	require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), []byte("garbage"), 0o644))
	touch(t, filepath.Join(dir, IndexFile), held.LoadedAtVersion().Add(time.Hour))

	got, rel := m.Acquire()
	rel()
	assert.Nil(t, got, "a store that failed to reload must not serve")
	assert.Nil(t, m.Current())
	assert.Equal(t, StateUnloaded, m.State())

	matches, err := held.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err, "a reader holding the dropped store can finish")
	require.Len(t, matches, 1)
}

func TestManager_FailedArtifactIsNotReloadedUntilItChanges(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	m := NewManager(dir, nil)
	defer m.Close()

	loads := 0
	m.load = func(dir string) (*Store, error) {
		loads++
		return Load(dir)
	}

	first := m.ReloadIfStale()
	require.NotNil(t, first)
	require.Equal(t, 1, loads)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), []byte("x"), 0o644))
	touch(t, filepath.Join(dir, IndexFile), first.LoadedAtVersion().Add(time.Hour))

	for i := 0; i < 5; i++ {
		assert.Nil(t, m.ReloadIfStale())
	}
	assert.Equal(t, 2, loads, "a broken artifact is loaded once per disk token")

	buildStore(t, dir, sampleRecords()[:2])
	next := m.ReloadIfStale()
	require.NotNil(t, next)
	assert.Equal(t, 2, next.VectorCount())
	assert.Equal(t, 3, loads)
	assert.Equal(t, StateReady, m.State())
}

func TestReadRecords(t *testing.T) {
	dir := t.TempDir()

	records, opts, err := ReadRecords(dir)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, opts.Dimension)

	buildStore(t, dir, sampleRecords())
	records, opts, err = ReadRecords(dir)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3, opts.Dimension)
	assert.Equal(t, "test-embed", opts.EmbedModel)
	assert.Equal(t, []float32{0, 1, 0}, records[1].Embedding)

	// Merge a new record into the existing build.
	merged := append(records, rec("fat", "Fat carries flavor.", 1, 1, 0))
	require.NoError(t, Build(dir, merged, opts))
	s := loadStore(t, dir)
	assert.Equal(t, 4, s.VectorCount())
}

func TestDiscover(t *testing.T) {
	assert.Equal(t, "/configured", Discover("/configured", "/env"))

	env := t.TempDir()
	buildStore(t, env, sampleRecords())
	assert.Equal(t, env, Discover("", env))

	assert.Equal(t, DefaultDir, Discover("", filepath.Join(t.TempDir(), "empty")))
}

func TestSearchPaths(t *testing.T) {
	paths := SearchPaths("/env")
	require.Len(t, paths, 4)
	assert.Equal(t, "/env", paths[0])
	assert.Equal(t, DefaultDir, paths[1])
	assert.Len(t, SearchPaths(""), 3)
}

func TestWatcher_RefreshesOnRebuild(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, sampleRecords())
	m := NewManager(dir, nil)
	defer m.Close()
	first := m.ReloadIfStale()
	require.NotNil(t, first)

	reloaded := make(chan *Store, 4)
	w := NewWatcher(m, 20*time.Millisecond)
	w.OnReload(func(s *Store) {
		select {
		case reloaded <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before the rebuild lands.
	time.Sleep(50 * time.Millisecond)
	buildStore(t, dir, sampleRecords()[:2])

	select {
	case s := <-reloaded:
		require.NotNil(t, s)
		assert.NotSame(t, first, s)
		assert.Equal(t, 2, s.VectorCount())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report a reload")
	}
	assert.Equal(t, 2, m.Current().VectorCount())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "stale", StateStale.String())
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stale", Stale.String())
	assert.False(t, errors.Is(ErrNotFound, ErrCorrupt))
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{1.5, -2.5, 3.14, 0}
	out := BlobToFloat32Slice(float32SliceToBlob(in))
	assert.Equal(t, in, out)
	assert.Empty(t, BlobToFloat32Slice(nil))
}
