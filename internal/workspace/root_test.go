package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/events"
	"github.com/fyrsmithlabs/scorekeep/internal/project"
	"github.com/fyrsmithlabs/scorekeep/internal/templates"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
)

// saveCounter wraps file documents and counts saves per owner.
type saveCounter struct {
	saves map[document.Owner]int
}

type countedDocument struct {
	document.Document
	owner   document.Owner
	counter *saveCounter
}

func (d *countedDocument) Save(ctx context.Context) error {
	d.counter.saves[d.owner]++
	return d.Document.Save(ctx)
}

func (c *saveCounter) factory(owner document.Owner, path string) document.Document {
	return &countedDocument{Document: document.NewFile(owner, path), owner: owner, counter: c}
}

type fakeImporter struct {
	err error
}

func (f fakeImporter) Import(ctx context.Context, p *project.Project, _ string) error {
	if f.err != nil {
		return f.err
	}
	tr := project.NewTrack(tree.KindPianoTrack, "Imported")
	tr.Notes = []project.Note{{ID: "n0", Beat: 0, Length: 4, Key: 60, Velocity: 0.5}}
	if err := p.AddTrack(tr); err != nil {
		return err
	}
	p.BroadcastReloadProjectContent(ctx)
	first, last := p.BroadcastChangeProjectBeatRange(ctx)
	p.BroadcastChangeViewBeatRange(ctx, first, last)
	return p.Save(ctx)
}

type testRoot struct {
	*Root
	saves    *saveCounter
	recorder *events.Recorder
	dir      string
}

func newTestRoot(t *testing.T, opts ...func(*Services)) *testRoot {
	t.Helper()
	counter := &saveCounter{saves: make(map[document.Owner]int)}
	rec := &events.Recorder{}
	bus := events.NewBus(nil)
	bus.Subscribe(rec)
	dir := t.TempDir()

	svc := Services{
		Bus:          bus,
		Documents:    counter.factory,
		Importer:     fakeImporter{},
		VCS:          vcs.Options{AuthorName: "Test", AuthorEmail: "test@example.com"},
		DocumentsDir: dir,
	}
	for _, opt := range opts {
		opt(&svc)
	}
	return &testRoot{Root: New(svc), saves: counter, recorder: rec, dir: dir}
}

func (tr *testRoot) savesOf(p *project.Project) int {
	return tr.saves.saves[p]
}

// writeProjectFile saves a project document with id and one piano track.
func writeProjectFile(t *testing.T, path, id string) {
	t.Helper()
	p := project.New(project.Options{ID: id, Name: "song"})
	p.SetDocument(document.NewFile(p, path))
	tr := project.NewTrack(tree.KindPianoTrack, "Piano")
	tr.Notes = []project.Note{{ID: "n0", Beat: 0, Length: 1, Key: 60, Velocity: 0.5}}
	require.NoError(t, p.AddTrack(tr))
	require.NoError(t, p.InstallPatternEditor())
	require.NoError(t, p.Save(context.Background()))
}

func firstPianoTrack(t *testing.T, r *Root, p *project.Project) tree.NodeID {
	t.Helper()
	id, ok := r.Arena().FirstChildOfKind(p.Node(), tree.KindPianoTrack)
	require.True(t, ok, "project has a piano track")
	return id
}

func assertEssentials(t *testing.T, r *Root, p *project.Project) {
	t.Helper()
	assert.Equal(t, 1, r.Arena().CountKind(p.Node(), tree.KindVersionControl), "version control children")
	assert.Equal(t, 1, r.Arena().CountKind(p.Node(), tree.KindPatternEditor), "pattern editor children")
}

func TestCreateEmptyNamed_Scenario(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	p, err := r.CreateEmptyNamed(ctx, "My Song")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "My Song", p.Name())
	assert.Equal(t, filepath.Join(r.dir, "My Song.helio"), p.FullPath())
	assert.True(t, document.Exists(p.FullPath()))

	history, err := p.Repository().History()
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.NotEmpty(t, p.Tracks())
	assert.Equal(t, firstPianoTrack(t, r.Root, p), r.Arena().Selected())
	assert.Equal(t, 1, r.savesOf(p))
	assertEssentials(t, r.Root, p)
}

func TestCreateEmpty_FirstCommitHasNoTracks(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	for _, create := range []func() (*project.Project, error){
		func() (*project.Project, error) {
			return r.CreateEmpty(ctx, filepath.Join(r.dir, "sub", "Desk.helio"))
		},
		func() (*project.Project, error) { return r.CreateExample(ctx) },
	} {
		p, err := create()
		require.NoError(t, err)
		require.NotEmpty(t, p.Tracks())

		history, err := p.Repository().History()
		require.NoError(t, err)
		require.Len(t, history, 1)
		for _, item := range history[0].Items {
			assert.NotEqual(t, vcs.KindTrack, item.Kind)
		}
	}
}

func TestCreateEmpty_NameFromLocation(t *testing.T) {
	r := newTestRoot(t)
	location := filepath.Join(r.dir, "Desk.helio")

	p, err := r.CreateEmpty(context.Background(), location)
	require.NoError(t, err)

	assert.Equal(t, "Desk", p.Name())
	assert.Equal(t, location, p.FullPath())
	assert.Equal(t, 1, r.savesOf(p))
}

func TestCreateExample(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	p, err := r.CreateExample(ctx)
	require.NoError(t, err)

	assert.Equal(t, DefaultProjectName, p.Name())
	assert.Len(t, p.Tracks(), 3)
	assert.Len(t, p.Timeline().TimeSignatures, 2)
	assert.Equal(t, 1, r.savesOf(p))
	assertEssentials(t, r.Root, p)
	assert.Equal(t, firstPianoTrack(t, r.Root, p), r.Arena().Selected())

	assert.Equal(t, []events.Kind{
		events.ReloadProjectContent,
		events.ChangeProjectBeatRange,
		events.ChangeViewBeatRange,
		events.ProjectOpened,
	}, r.recorder.Kinds())
	rangeEvent := r.recorder.Events[1]
	assert.Equal(t, float32(0), rangeEvent.FirstBeat)
	assert.Equal(t, float32(32), rangeEvent.LastBeat)
	viewEvent := r.recorder.Events[2]
	assert.Equal(t, rangeEvent.FirstBeat, viewEvent.FirstBeat)
	assert.Equal(t, rangeEvent.LastBeat, viewEvent.LastBeat)
}

func TestCreate_AppendsToRoot(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	a, err := r.CreateEmptyNamed(ctx, "A")
	require.NoError(t, err)
	b, err := r.CreateEmptyNamed(ctx, "B")
	require.NoError(t, err)

	assert.Equal(t, []tree.NodeID{a.Node(), b.Node()}, r.Arena().Children(r.Node()))
}

func TestBootstrap_MissingTemplatePanics(t *testing.T) {
	r := newTestRoot(t, func(s *Services) { s.Templates = &templates.Table{} })

	assert.Panics(t, func() {
		_, _ = r.CreateEmptyNamed(context.Background(), "Broken")
	})
}

func TestOpenFromFile_PathDuplicateScenario(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)
	path := filepath.Join(r.dir, "a", "song.helio")
	writeProjectFile(t, path, "X123")

	existing, err := r.OpenFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "X123", existing.ID())
	assert.Equal(t, path, existing.FullPath())

	// Move the selection away so the reselection is observable.
	require.NoError(t, r.Arena().Select(r.Node()))
	children := r.Len()

	p, err := r.OpenFromFile(ctx, path)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, children, r.Len())
	assert.Equal(t, firstPianoTrack(t, r.Root, existing), r.Arena().Selected())
}

func TestOpenFromFile_IDDuplicate(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)
	first := filepath.Join(r.dir, "one.helio")
	second := filepath.Join(r.dir, "two.helio")
	writeProjectFile(t, first, "same-id")
	writeProjectFile(t, second, "same-id")

	canonical, err := r.OpenFromFile(ctx, first)
	require.NoError(t, err)
	require.NoError(t, r.Arena().Select(r.Node()))
	live := r.Arena().Live()

	p, err := r.OpenFromFile(ctx, second)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, live, r.Arena().Live(), "the duplicate subtree is freed")
	assert.Equal(t, firstPianoTrack(t, r.Root, canonical), r.Arena().Selected())
	found, ok := r.FindByID("same-id")
	require.True(t, ok)
	assert.Same(t, canonical, found)
}

func TestOpenFromFile_Failures(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	p, err := r.OpenFromFile(ctx, filepath.Join(r.dir, "missing.helio"))
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrFileNotFound)

	corrupt := filepath.Join(r.dir, "corrupt.helio")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))
	p, err = r.OpenFromFile(ctx, corrupt)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrLoadFailed)

	foreign := filepath.Join(r.dir, "foreign.helio")
	require.NoError(t, os.WriteFile(foreign, []byte(`{"type":"session"}`), 0o600))
	p, err = r.OpenFromFile(ctx, foreign)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrLoadFailed)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.Arena().Live(), "only the root node is left")
	assert.Empty(t, r.recorder.Events)
}

func TestOpenFromFile_InsertsAtIndexOne(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)
	settings, err := r.AddAuxiliary(tree.KindSettings, 0)
	require.NoError(t, err)
	instruments, err := r.AddAuxiliary(tree.KindInstruments, -1)
	require.NoError(t, err)

	path := filepath.Join(r.dir, "song.helio")
	writeProjectFile(t, path, "X1")
	p, err := r.OpenFromFile(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, []tree.NodeID{settings, p.Node(), instruments}, r.Arena().Children(r.Node()))
}

func TestCheckout_EmptyIDRejected(t *testing.T) {
	r := newTestRoot(t)

	p, err := r.Checkout(context.Background(), "", "name")

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrEmptyProjectID)
	assert.Equal(t, 0, r.Len())
}

func TestCheckout_WithoutRemoteKeepsStub(t *testing.T) {
	r := newTestRoot(t)

	p, err := r.Checkout(context.Background(), "X9", "Shared")
	require.NoError(t, err)

	assert.Equal(t, "X9", p.ID())
	assert.Equal(t, "Shared", p.Name())
	assert.Empty(t, p.Tracks())
	assertEssentials(t, r.Root, p)
	assert.False(t, p.Repository().Ready())
	assert.Equal(t, p.Node(), r.Arena().Selected())

	_, err = r.Checkout(context.Background(), "X9", "Shared")
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, 1, r.Len())
}

func TestCheckout_ClonesHistory(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()

	// Publish a project history as "<remote>/X9.git".
	src := project.New(project.Options{ID: "X9", Name: "Shared"})
	tr := project.NewTrack(tree.KindPianoTrack, "Lead")
	tr.Notes = []project.Note{{ID: "n0", Beat: 0, Length: 40, Key: 60, Velocity: 0.5}}
	require.NoError(t, src.AddTrack(tr))
	upstream, err := vcs.Open("X9.git", vcs.Options{Dir: remote, AuthorName: "Up"})
	require.NoError(t, err)
	_, err = upstream.CommitAll(ctx, src, "shared")
	require.NoError(t, err)

	r := newTestRoot(t, func(s *Services) { s.VCS.RemoteBase = remote })
	_, err = r.AddAuxiliary(tree.KindSettings, 0)
	require.NoError(t, err)
	_, err = r.AddAuxiliary(tree.KindInstruments, -1)
	require.NoError(t, err)

	p, err := r.Checkout(ctx, "X9", "Shared")
	require.NoError(t, err)

	assert.Equal(t, p.Node(), r.Arena().Children(r.Node())[1])
	assertEssentials(t, r.Root, p)
	require.Len(t, p.Tracks(), 1)
	assert.Equal(t, "Lead", p.Tracks()[0].Name)
	assert.Equal(t, firstPianoTrack(t, r.Root, p), r.Arena().Selected())
	assert.True(t, document.Exists(p.FullPath()))

	history, err := p.Repository().History()
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, r.recorder.Count(events.ChangeProjectBeatRange))
}

func TestImportExternal(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	p, err := r.ImportExternal(ctx, "/music/Groove.mid")
	require.NoError(t, err)

	assert.Equal(t, "Groove", p.Name())
	assert.Len(t, p.Tracks(), 1)
	assertEssentials(t, r.Root, p)
	assert.Equal(t, firstPianoTrack(t, r.Root, p), r.Arena().Selected())
	assert.Equal(t, 1, r.savesOf(p), "the importer saves, not the root")
}

func TestImportExternal_Failure(t *testing.T) {
	r := newTestRoot(t, func(s *Services) { s.Importer = fakeImporter{err: errors.New("bad midi")} })

	p, err := r.ImportExternal(context.Background(), "/music/Broken.mid")

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrImportFailed)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.Arena().Live())
}

func TestEssentials_AfterEverySuccessfulCreation(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	created := []func() (*project.Project, error){
		func() (*project.Project, error) { return r.CreateEmptyNamed(ctx, "Empty") },
		func() (*project.Project, error) { return r.CreateExample(ctx) },
		func() (*project.Project, error) { return r.Checkout(ctx, "C1", "Checked out") },
		func() (*project.Project, error) { return r.ImportExternal(ctx, "/music/Imported.mid") },
	}
	for _, create := range created {
		p, err := create()
		require.NoError(t, err)
		assertEssentials(t, r.Root, p)
	}
	assert.Equal(t, len(created), r.Len())
}

func TestCloseProject(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)

	a, err := r.CreateEmptyNamed(ctx, "A")
	require.NoError(t, err)
	b, err := r.CreateEmptyNamed(ctx, "B")
	require.NoError(t, err)
	r.recorder.Reset()

	require.NoError(t, r.CloseProject(ctx, b.ID()))
	assert.Equal(t, []*project.Project{a}, r.Projects())
	assert.Equal(t, firstPianoTrack(t, r.Root, a), r.Arena().Selected())
	assert.Equal(t, 2, r.savesOf(b), "closing saves the project")
	assert.Equal(t, []events.Kind{events.ProjectClosed}, r.recorder.Kinds())

	require.NoError(t, r.CloseProject(ctx, a.ID()))
	assert.Equal(t, r.Node(), r.Arena().Selected())
	assert.Equal(t, 1, r.Arena().Live())

	assert.ErrorIs(t, r.CloseProject(ctx, a.ID()), ErrProjectNotFound)
}

func TestAddAuxiliary_RejectsProjects(t *testing.T) {
	r := newTestRoot(t)
	_, err := r.AddAuxiliary(tree.KindProject, 0)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	r := newTestRoot(t)
	_, err := r.CreateExample(ctx)
	require.NoError(t, err)
	_, err = r.AddAuxiliary(tree.KindSettings, 0)
	require.NoError(t, err)

	r.Close(ctx)

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Projects())
	assert.Equal(t, 1, r.Arena().Live())
}
