package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/scorekeep/internal/state"
)

func writeProject(t *testing.T, path, id, name string) {
	t.Helper()
	body := `{"type":"project","properties":{"id":"` + id + `","name":"` + name + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func nextEvent(t *testing.T, w *Watcher, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", want)
		}
	}
}

func newWatcher(t *testing.T) (*Watcher, *state.Store, string) {
	t.Helper()
	store, err := state.Open(state.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := filepath.Join(t.TempDir(), "docs")
	w, err := New(dir, store, nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, store, w.dir
}

func TestWatcher_ScanOnStart(t *testing.T) {
	w, store, dir := newWatcher(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeProject(t, filepath.Join(dir, "Old.helio"), "old-1", "Old")
	writeProject(t, filepath.Join(dir, ".tmp-123"), "tmp", "Tmp")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.NoError(t, w.Start(context.Background()))

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "old-1", recent[0].ID)
	assert.Equal(t, filepath.Join(dir, "Old.helio"), recent[0].Path)
	assert.False(t, recent[0].Loaded())
}

func TestWatcher_SavedAndRemoved(t *testing.T) {
	ctx := context.Background()
	w, store, dir := newWatcher(t)
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(dir, "Song.helio")
	writeProject(t, path, "song-1", "Song")

	ev := nextEvent(t, w, EventSaved)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, "song-1", ev.ProjectID)
	assert.Equal(t, "Song", ev.Title)

	p, err := store.FindByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "song-1", p.ID)

	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, w, EventRemoved)
	assert.Equal(t, path, ev.Path)

	_, err = store.Find(ctx, "song-1")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestWatcher_ForeignFilesIgnored(t *testing.T) {
	ctx := context.Background()
	w, store, dir := newWatcher(t)
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.helio"), []byte("{"), 0o600))
	writeProject(t, filepath.Join(dir, "Real.helio"), "real-1", "Real")
	nextEvent(t, w, EventSaved)

	recent, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "real-1", recent[0].ID)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}

func TestIsProjectFile(t *testing.T) {
	tests := map[string]bool{
		"/d/Song.helio":      true,
		"/d/SONG.HELIO":      true,
		"/d/.tmp-1":          false,
		"/d/.hidden.helio":   false,
		"/d/Song.helio.yaml": false,
		"/d/Song.mid":        false,
	}
	for path, want := range tests {
		assert.Equal(t, want, isProjectFile(path), path)
	}
}
