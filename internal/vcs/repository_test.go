package vcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
)

type fakeSource struct {
	name   string
	tracks []string
}

func (s *fakeSource) InfoSnapshots() []Snapshot {
	return []Snapshot{
		{Item: Item{ID: KindMetadata, Kind: KindMetadata}, Data: serialization.New(serialization.TypeMetadata).Set(serialization.KeyName, s.name)},
		{Item: Item{ID: KindTimeline, Kind: KindTimeline}, Data: serialization.New(serialization.TypeTimeline)},
	}
}

func (s *fakeSource) AllSnapshots() []Snapshot {
	out := s.InfoSnapshots()
	for _, id := range s.tracks {
		out = append(out, Snapshot{
			Item: Item{ID: id, Kind: KindTrack},
			Data: serialization.New(serialization.TypePianoTrack).Set(serialization.KeyID, id),
		})
	}
	return out
}

func testOptions() Options {
	return Options{AuthorName: "Test", AuthorEmail: "test@example.com"}
}

func TestRepository_FirstCommitHasNoTracks(t *testing.T) {
	ctx := context.Background()
	repo, err := Open("p1", testOptions())
	require.NoError(t, err)

	history, err := repo.History()
	require.NoError(t, err)
	assert.Empty(t, history)

	src := &fakeSource{name: "Song", tracks: []string{"piano"}}
	hash, err := repo.CommitProjectInfo(ctx, src)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	history, err = repo.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "project info", history[0].Message)
	assert.Equal(t, "Test", history[0].Author)
	assert.ElementsMatch(t, []Item{
		{ID: KindMetadata, Kind: KindMetadata},
		{ID: KindTimeline, Kind: KindTimeline},
	}, history[0].Items)
}

func TestRepository_CommitAll(t *testing.T) {
	ctx := context.Background()
	repo, err := Open("p1", testOptions())
	require.NoError(t, err)

	src := &fakeSource{name: "Song", tracks: []string{"piano", "bass"}}
	_, err = repo.CommitProjectInfo(ctx, src)
	require.NoError(t, err)
	_, err = repo.CommitAll(ctx, src, "")
	require.NoError(t, err)

	_, err = repo.CommitAll(ctx, src, "again")
	assert.ErrorIs(t, err, ErrNothingToCommit)

	src.tracks = []string{"bass"}
	_, err = repo.CommitAll(ctx, src, "drop piano")
	require.NoError(t, err)

	history, err := repo.History()
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "drop piano", history[0].Message)
	assert.Contains(t, history[0].Items, Item{ID: "bass", Kind: KindTrack})
	assert.NotContains(t, history[0].Items, Item{ID: "piano", Kind: KindTrack})
	assert.Contains(t, history[1].Items, Item{ID: "piano", Kind: KindTrack})

	snaps, err := repo.HeadSnapshot()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, KindMetadata, snaps[0].Kind)
	assert.Equal(t, "Song", snaps[0].Data.String(serialization.KeyName, ""))
	assert.Equal(t, KindTimeline, snaps[1].Kind)
	assert.Equal(t, "bass", snaps[2].ID)
}

func TestRepository_OnDiskReopen(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Dir = t.TempDir()

	repo, err := Open("p1", opts)
	require.NoError(t, err)
	_, err = repo.CommitProjectInfo(ctx, &fakeSource{name: "Song"})
	require.NoError(t, err)

	reopened, err := Open("p1", opts)
	require.NoError(t, err)
	history, err := reopened.History()
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepository_Clone(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()

	// An on-disk repository named "<id>.git" under remote serves as the
	// clone source.
	upstreamOpts := testOptions()
	upstreamOpts.Dir = remote
	upstream, err := Open("X123.git", upstreamOpts)
	require.NoError(t, err)
	_, err = upstream.CommitAll(ctx, &fakeSource{name: "Shared", tracks: []string{"lead"}}, "shared")
	require.NoError(t, err)

	opts := testOptions()
	opts.RemoteBase = remote
	repo := ForClone("X123", opts)
	assert.False(t, repo.Ready())

	_, err = repo.History()
	assert.ErrorIs(t, err, ErrNotCloned)
	_, err = repo.HeadSnapshot()
	assert.ErrorIs(t, err, ErrNotCloned)

	require.NoError(t, repo.Clone(ctx))
	assert.True(t, repo.Ready())

	snaps, err := repo.HeadSnapshot()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "Shared", snaps[0].Data.String(serialization.KeyName, ""))
	assert.Equal(t, "lead", snaps[2].ID)
}

func TestRepository_CloneWithoutRemote(t *testing.T) {
	repo := ForClone("X123", testOptions())
	assert.ErrorIs(t, repo.Clone(context.Background()), ErrNoRemote)
	_, err := repo.CommitProjectInfo(context.Background(), &fakeSource{})
	assert.ErrorIs(t, err, ErrNotCloned)
}

func TestRepository_RemoteURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", ""},
		{"https://example.com/projects/", "https://example.com/projects/X1.git"},
		{"/srv/history", "/srv/history/X1.git"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			repo := ForClone("X1", Options{RemoteBase: tt.base, AuthorName: "a"})
			assert.Equal(t, tt.want, repo.RemoteURL())
		})
	}
}
