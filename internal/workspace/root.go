package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/events"
	"github.com/fyrsmithlabs/scorekeep/internal/metrics"
	"github.com/fyrsmithlabs/scorekeep/internal/project"
	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
	"github.com/fyrsmithlabs/scorekeep/internal/state"
	"github.com/fyrsmithlabs/scorekeep/internal/templates"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
)

// InstrumentationName names the tracer of workspace operations.
const InstrumentationName = "github.com/fyrsmithlabs/scorekeep/internal/workspace"

const (
	// RootName is the display name of the workspace root.
	RootName = "Workspace"

	// DefaultProjectName names example projects.
	DefaultProjectName = "New project"

	// insertIndex is where opened and checked out projects go, right after
	// the reserved first slot.
	insertIndex = 1
)

var (
	// ErrAlreadyOpen indicates the project is already open. Its default
	// view target was selected again.
	ErrAlreadyOpen = errors.New("workspace: project already open")

	// ErrFileNotFound indicates the path does not name an existing file.
	ErrFileNotFound = errors.New("workspace: file not found")

	// ErrLoadFailed indicates the document could not be loaded.
	ErrLoadFailed = errors.New("workspace: project could not be loaded")

	// ErrEmptyProjectID indicates a checkout without a project id.
	ErrEmptyProjectID = errors.New("workspace: empty project id")

	// ErrImportFailed indicates the external file could not be imported.
	ErrImportFailed = errors.New("workspace: import failed")

	// ErrProjectNotFound indicates no open project has the given id.
	ErrProjectNotFound = errors.New("workspace: project not found")
)

// noopErrors are outcomes that leave the tree unchanged.
var noopErrors = []error{ErrAlreadyOpen, ErrFileNotFound, ErrLoadFailed, ErrEmptyProjectID, ErrImportFailed}

// Importer fills a project from a foreign file format.
type Importer interface {
	Import(ctx context.Context, p *project.Project, file string) error
}

// RecentList records which projects were used.
type RecentList interface {
	Touch(ctx context.Context, p state.RecentProject) error
	MarkUnloaded(ctx context.Context, id string) error
}

// Services are the collaborators a Root works with. Zero fields get
// working defaults, except Importer, which ImportExternal requires.
type Services struct {
	Logger    *zap.Logger
	Bus       *events.Bus
	Documents document.Factory
	Templates *templates.Table
	Importer  Importer
	VCS       vcs.Options
	// DocumentsDir is where projects created by name are stored.
	DocumentsDir string
	Recent       RecentList
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Root is the project tree root. It owns every open project and keeps at
// most one live project per document path and per project id.
//
// Root is not safe for concurrent use; see Session.
type Root struct {
	arena    *tree.Arena
	node     tree.NodeID
	projects map[tree.NodeID]*project.Project
	svc      Services
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New returns an empty workspace root.
func New(svc Services) *Root {
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	if svc.Bus == nil {
		svc.Bus = events.NewBus(svc.Logger)
	}
	if svc.Documents == nil {
		svc.Documents = document.NewFactory(document.WithLogger(svc.Logger))
	}
	if svc.Templates == nil {
		svc.Templates = templates.Default()
	}
	if svc.VCS.Logger == nil {
		svc.VCS.Logger = svc.Logger
	}
	if svc.Tracer == nil {
		svc.Tracer = otel.Tracer(InstrumentationName)
	}

	arena := tree.NewArena()
	return &Root{
		arena:    arena,
		node:     arena.New(tree.KindRoot, RootName),
		projects: make(map[tree.NodeID]*project.Project),
		svc:      svc,
		logger:   svc.Logger,
		tracer:   svc.Tracer,
	}
}

// Arena returns the forest holding the workspace tree.
func (r *Root) Arena() *tree.Arena { return r.arena }

// Node returns the root node.
func (r *Root) Node() tree.NodeID { return r.node }

// Bus returns the notification bus shared by all projects.
func (r *Root) Bus() *events.Bus { return r.svc.Bus }

// Len returns the number of root children.
func (r *Root) Len() int { return r.arena.Len(r.node) }

// Projects returns the open projects in child order.
func (r *Root) Projects() []*project.Project {
	var out []*project.Project
	for _, id := range r.arena.ChildrenOfKind(r.node, tree.KindProject) {
		if p, ok := r.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Selected returns the selected node and the project that owns it.
func (r *Root) Selected() (tree.NodeID, *project.Project) {
	sel := r.arena.Selected()
	for _, p := range r.projects {
		if p.Node() == sel || r.arena.IsAncestor(p.Node(), sel) {
			return sel, p
		}
	}
	return sel, nil
}

// FindByPath returns the first project whose document is at path.
func (r *Root) FindByPath(path string) (*project.Project, bool) {
	return r.find(func(p *project.Project) bool {
		return p.FullPath() == path
	})
}

// FindByID returns the first project with the stable id.
func (r *Root) FindByID(id string) (*project.Project, bool) {
	return r.find(func(p *project.Project) bool {
		return p.ID() == id
	})
}

func (r *Root) find(match func(*project.Project) bool) (*project.Project, bool) {
	for _, p := range r.Projects() {
		if match(p) {
			return p, true
		}
	}
	return nil, false
}

func (r *Root) newProject(id, name string) *project.Project {
	return project.New(project.Options{
		ID:     id,
		Name:   name,
		Arena:  r.arena,
		Bus:    r.svc.Bus,
		Logger: r.logger,
		VCS:    r.svc.VCS,
	})
}

// attach places p under the root. index < 0 appends. A failure here means
// the tree is corrupted.
func (r *Root) attach(p *project.Project, index int) {
	if err := r.arena.Attach(r.node, p.Node(), index); err != nil {
		panic(fmt.Sprintf("workspace: attach project %s: %v", p.ID(), err))
	}
	r.projects[p.Node()] = p
	metrics.ProjectsOpen.Set(float64(len(r.projects)))
}

// discard detaches p and frees its subtree.
func (r *Root) discard(p *project.Project) {
	delete(r.projects, p.Node())
	r.arena.Free(p.Node())
	metrics.ProjectsOpen.Set(float64(len(r.projects)))
}

// installEssentials attaches version control, records the first commit
// with the project info only, then attaches the pattern editor.
func (r *Root) installEssentials(ctx context.Context, p *project.Project) {
	repo, err := vcs.Open(p.ID(), r.svc.VCS)
	if err != nil {
		r.logger.Warn("history unavailable, keeping it in memory",
			zap.String("project_id", p.ID()), zap.Error(err))
		memOpts := r.svc.VCS
		memOpts.Dir = ""
		if repo, err = vcs.Open(p.ID(), memOpts); err != nil {
			panic(fmt.Sprintf("workspace: in-memory history: %v", err))
		}
	}
	if err := p.InstallVersionControl(repo); err != nil {
		panic(fmt.Sprintf("workspace: install version control: %v", err))
	}
	if _, err := repo.CommitProjectInfo(ctx, p); err != nil && !errors.Is(err, vcs.ErrNothingToCommit) {
		r.logger.Warn("first commit failed", zap.String("project_id", p.ID()), zap.Error(err))
	}
	if err := p.InstallPatternEditor(); err != nil {
		panic(fmt.Sprintf("workspace: install pattern editor: %v", err))
	}
}

// bootstrapFromTemplate fills p with the tracks and timeline of a built-in
// template, announces the content and saves p once.
func (r *Root) bootstrapFromTemplate(ctx context.Context, p *project.Project, name string) *project.Project {
	payload := r.svc.Templates.MustLookup(name)
	d, err := serialization.JSON.Decode(payload)
	if err != nil {
		panic(fmt.Sprintf("workspace: template %s: %v", name, err))
	}

	p.DeserializeTracks(d)
	if timeline := d.ChildWithName(serialization.TypeTimeline); timeline != nil {
		p.Timeline().Deserialize(timeline)
	}

	p.BroadcastReloadProjectContent(ctx)
	first, last := p.BroadcastChangeProjectBeatRange(ctx)
	p.BroadcastChangeViewBeatRange(ctx, first, last)

	if err := p.Save(ctx); err != nil {
		r.logger.Warn("bootstrapped project not saved", zap.String("project_id", p.ID()), zap.Error(err))
	}
	return p
}

// opened finishes every successful operation.
func (r *Root) opened(ctx context.Context, p *project.Project) {
	p.SelectDefaultTarget()
	r.touchRecent(ctx, p)
	r.svc.Bus.Publish(ctx, events.Event{
		Kind:      events.ProjectOpened,
		ProjectID: p.ID(),
		Name:      p.Name(),
		Tracks:    len(p.Tracks()),
	})
}

func (r *Root) touchRecent(ctx context.Context, p *project.Project) {
	if r.svc.Recent == nil {
		return
	}
	err := r.svc.Recent.Touch(ctx, state.RecentProject{
		ID:    p.ID(),
		Title: p.Name(),
		Path:  p.FullPath(),
	})
	if err != nil {
		r.logger.Warn("recent projects not updated", zap.String("project_id", p.ID()), zap.Error(err))
	}
}

func (r *Root) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := r.tracer.Start(ctx, "workspace."+op)
	span.SetAttributes(attrs...)
	return ctx, span, time.Now()
}

func (r *Root) endSpan(span trace.Span, op string, start time.Time, p *project.Project, err error) {
	metrics.ObserveOperation(op, start, err, noopErrors...)
	if err != nil {
		if metrics.Result(err, noopErrors...) == metrics.ResultError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", err.Error()))
	}
	if p != nil {
		span.SetAttributes(attribute.String("project_id", p.ID()))
	}
	span.End()
}

// OpenFromFile opens the project document at path.
//
// A project already open at path, or one that turns out to carry the same
// id as an open project, is not opened twice: the existing project's
// default target is selected and ErrAlreadyOpen is returned. A missing file
// returns ErrFileNotFound and a failed load ErrLoadFailed. In every no-op
// case the tree is left as it was.
func (r *Root) OpenFromFile(ctx context.Context, path string) (p *project.Project, err error) {
	path = document.Canonical(path)
	ctx, span, start := r.startSpan(ctx, "open", attribute.String("path", path))
	defer func() { r.endSpan(span, "open", start, p, err) }()

	if existing, ok := r.FindByPath(path); ok {
		existing.SelectDefaultTarget()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
	}
	if !document.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	others := r.Projects()
	candidate := r.newProject("", projectNameFromPath(path))
	candidate.SetDocument(r.svc.Documents(candidate, path))
	r.attach(candidate, insertIndex)

	if err := candidate.Load(ctx, path); err != nil {
		r.discard(candidate)
		r.logger.Warn("project not loaded", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	for _, other := range others {
		if other.ID() == candidate.ID() {
			r.discard(candidate)
			other.SelectDefaultTarget()
			return nil, fmt.Errorf("%w: id %s", ErrAlreadyOpen, other.ID())
		}
	}

	r.logger.Info("project opened",
		zap.String("project_id", candidate.ID()),
		zap.String("path", path),
	)
	r.opened(ctx, candidate)
	return candidate, nil
}

// Checkout adds a stub project for id and clones its history. The stub
// has version control and a pattern editor but no content until the clone
// succeeds. A failed clone is logged and the stub is kept.
func (r *Root) Checkout(ctx context.Context, id, name string) (p *project.Project, err error) {
	ctx, span, start := r.startSpan(ctx, "checkout", attribute.String("project_id", id))
	defer func() { r.endSpan(span, "checkout", start, p, err) }()

	if id == "" {
		return nil, ErrEmptyProjectID
	}
	if existing, ok := r.FindByID(id); ok {
		existing.SelectDefaultTarget()
		return nil, fmt.Errorf("%w: id %s", ErrAlreadyOpen, id)
	}
	if name == "" {
		name = id
	}

	p = r.newProject(id, name)
	p.SetDocument(r.svc.Documents(p, r.slot(name)))
	r.attach(p, insertIndex)

	repo := vcs.ForClone(id, r.svc.VCS)
	if err := p.InstallVersionControl(repo); err != nil {
		panic(fmt.Sprintf("workspace: install version control: %v", err))
	}
	if err := p.InstallPatternEditor(); err != nil {
		panic(fmt.Sprintf("workspace: install pattern editor: %v", err))
	}

	if err := r.clone(ctx, p); err != nil {
		r.logger.Warn("project clone failed",
			zap.String("project_id", id),
			zap.String("remote", repo.RemoteURL()),
			zap.Error(err),
		)
	}

	r.opened(ctx, p)
	return p, nil
}

// clone fetches the history of p and applies its head revision.
func (r *Root) clone(ctx context.Context, p *project.Project) error {
	repo := p.Repository()
	if err := repo.Clone(ctx); err != nil {
		return err
	}
	snaps, err := repo.HeadSnapshot()
	if err != nil {
		return err
	}
	p.ApplySnapshots(snaps)
	p.BroadcastReloadProjectContent(ctx)
	first, last := p.BroadcastChangeProjectBeatRange(ctx)
	p.BroadcastChangeViewBeatRange(ctx, first, last)
	return p.Save(ctx)
}

// CreateEmpty creates a project stored at location from the empty
// template. The project is named after the file.
func (r *Root) CreateEmpty(ctx context.Context, location string) (*project.Project, error) {
	location = document.Canonical(location)
	return r.createFromTemplate(ctx, "create_empty", projectNameFromPath(location), location, templates.EmptyProject)
}

// CreateEmptyNamed creates a project called name in the documents
// directory from the empty template.
func (r *Root) CreateEmptyNamed(ctx context.Context, name string) (*project.Project, error) {
	return r.createFromTemplate(ctx, "create_empty", name, r.slot(name), templates.EmptyProject)
}

// CreateExample creates a project from the example template.
func (r *Root) CreateExample(ctx context.Context) (*project.Project, error) {
	return r.createFromTemplate(ctx, "create_example", DefaultProjectName, r.slot(DefaultProjectName), templates.ExampleProject)
}

func (r *Root) createFromTemplate(ctx context.Context, op, name, location, template string) (p *project.Project, err error) {
	ctx, span, start := r.startSpan(ctx, op,
		attribute.String("name", name),
		attribute.String("template", template),
	)
	defer func() { r.endSpan(span, op, start, p, err) }()

	p = r.newProject("", name)
	p.SetDocument(r.svc.Documents(p, location))
	r.attach(p, -1)
	r.installEssentials(ctx, p)
	r.bootstrapFromTemplate(ctx, p, template)

	r.logger.Info("project created",
		zap.String("project_id", p.ID()),
		zap.String("name", name),
		zap.String("template", template),
	)
	r.opened(ctx, p)
	return p, nil
}

// ImportExternal creates a project named after file and fills it with the
// importer. A failed import removes the project again and returns
// ErrImportFailed.
func (r *Root) ImportExternal(ctx context.Context, file string) (p *project.Project, err error) {
	ctx, span, start := r.startSpan(ctx, "import", attribute.String("file", file))
	defer func() { r.endSpan(span, "import", start, p, err) }()

	if r.svc.Importer == nil {
		return nil, fmt.Errorf("%w: no importer configured", ErrImportFailed)
	}

	name := projectNameFromPath(file)
	p = r.newProject("", name)
	p.SetDocument(r.svc.Documents(p, r.slot(name)))
	r.attach(p, -1)
	r.installEssentials(ctx, p)

	if err := r.svc.Importer.Import(ctx, p, file); err != nil {
		r.discard(p)
		return nil, fmt.Errorf("%w: %s: %v", ErrImportFailed, file, err)
	}

	r.logger.Info("project imported",
		zap.String("project_id", p.ID()),
		zap.String("file", file),
	)
	r.opened(ctx, p)
	return p, nil
}

// CloseProject saves the project with id and removes it from the tree. A
// selection inside the project moves to another project or to the root.
func (r *Root) CloseProject(ctx context.Context, id string) error {
	p, ok := r.FindByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	if p.FullPath() != "" {
		if err := p.Save(ctx); err != nil {
			r.logger.Warn("project not saved on close", zap.String("project_id", id), zap.Error(err))
		}
	}

	_, owner := r.Selected()
	r.discard(p)
	if owner == p {
		if rest := r.Projects(); len(rest) > 0 {
			rest[0].SelectDefaultTarget()
		} else {
			_ = r.arena.Select(r.node)
		}
	}

	if r.svc.Recent != nil {
		if err := r.svc.Recent.MarkUnloaded(ctx, id); err != nil && !errors.Is(err, state.ErrNotFound) {
			r.logger.Warn("recent projects not updated", zap.String("project_id", id), zap.Error(err))
		}
	}
	r.svc.Bus.Publish(ctx, events.Event{Kind: events.ProjectClosed, ProjectID: id, Name: p.Name()})
	r.logger.Info("project closed", zap.String("project_id", id))
	return nil
}

// AddAuxiliary attaches a settings or instruments node at index.
func (r *Root) AddAuxiliary(kind tree.Kind, index int) (tree.NodeID, error) {
	if !kind.Is(tree.CapAuxiliary) {
		return tree.None, fmt.Errorf("workspace: %s is not an auxiliary node", kind)
	}
	node := r.arena.New(kind, kind.String())
	if err := r.arena.Attach(r.node, node, index); err != nil {
		r.arena.Free(node)
		return tree.None, err
	}
	return node, nil
}

// Close saves and frees every project.
func (r *Root) Close(ctx context.Context) {
	for _, p := range r.Projects() {
		if p.FullPath() == "" {
			continue
		}
		if err := p.Save(ctx); err != nil {
			r.logger.Warn("project not saved on shutdown", zap.String("project_id", p.ID()), zap.Error(err))
		}
	}
	for _, child := range r.arena.Children(r.node) {
		r.arena.Free(child)
	}
	r.projects = make(map[tree.NodeID]*project.Project)
	metrics.ProjectsOpen.Set(0)
}

func (r *Root) slot(name string) string {
	dir := r.svc.DocumentsDir
	if dir == "" {
		dir = "."
	}
	return document.Slot(dir, name)
}

func projectNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
