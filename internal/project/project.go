package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/events"
	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
)

var (
	// ErrNotProject indicates a document whose root is not a project.
	ErrNotProject = errors.New("project: document is not a project")

	// ErrNoDocument indicates an operation that needs a document handle.
	ErrNoDocument = errors.New("project: no document")
)

// Metadata is the project info recorded by the first commit.
type Metadata struct {
	Author      string
	Description string
	License     string
	Temperament string
	CreatedAt   time.Time
}

// PatternEditor keeps the arrangement view state.
type PatternEditor struct {
	node         tree.NodeID
	Zoom         float32
	SelectedClip string
}

// Node returns the tree node of the editor.
func (e *PatternEditor) Node() tree.NodeID { return e.node }

// Options configures a new project.
type Options struct {
	// ID is the stable identifier. Empty generates a UUID.
	ID     string
	Name   string
	Arena  *tree.Arena
	Bus    *events.Bus
	Logger *zap.Logger
	// VCS configures repositories opened while loading a document.
	VCS vcs.Options
}

// Project is one open project.
type Project struct {
	id       string
	name     string
	arena    *tree.Arena
	node     tree.NodeID
	doc      document.Document
	info     Metadata
	timeline Timeline
	tracks   map[tree.NodeID]*Track
	repo     *vcs.Repository
	editor   *PatternEditor
	bus      *events.Bus
	vcsOpts  vcs.Options
	logger   *zap.Logger

	rangeKnown     bool
	firstBeatCache float32
	lastBeatCache  float32
}

// New returns a detached project with a fresh tree node.
func New(opts Options) *Project {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Arena == nil {
		opts.Arena = tree.NewArena()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Project{
		id:      opts.ID,
		name:    opts.Name,
		arena:   opts.Arena,
		node:    opts.Arena.New(tree.KindProject, opts.Name),
		info:    Metadata{CreatedAt: time.Now().UTC()},
		tracks:  make(map[tree.NodeID]*Track),
		bus:     opts.Bus,
		vcsOpts: opts.VCS,
		logger:  opts.Logger,
	}
}

// ID returns the stable identifier.
func (p *Project) ID() string { return p.id }

// Name returns the display name.
func (p *Project) Name() string { return p.name }

// Node returns the project's tree node.
func (p *Project) Node() tree.NodeID { return p.node }

// Metadata returns the project info.
func (p *Project) Metadata() *Metadata { return &p.info }

// Timeline returns the project timeline.
func (p *Project) Timeline() *Timeline { return &p.timeline }

// Repository returns the version-control subsystem, or nil.
func (p *Project) Repository() *vcs.Repository { return p.repo }

// PatternEditor returns the pattern-editor subsystem, or nil.
func (p *Project) PatternEditor() *PatternEditor { return p.editor }

// Document returns the persistence handle, or nil.
func (p *Project) Document() document.Document { return p.doc }

// SetDocument sets the persistence handle.
func (p *Project) SetDocument(doc document.Document) { p.doc = doc }

// FullPath returns the document location, or "".
func (p *Project) FullPath() string {
	if p.doc == nil {
		return ""
	}
	return p.doc.FullPath()
}

// Tracks returns the tracks in tree order.
func (p *Project) Tracks() []*Track {
	var out []*Track
	for _, id := range p.arena.ChildrenWith(p.node, tree.CapTrack) {
		if t, ok := p.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// InstallVersionControl attaches repo as the version-control child.
func (p *Project) InstallVersionControl(repo *vcs.Repository) error {
	if p.repo != nil {
		return fmt.Errorf("project %s: version control already installed", p.id)
	}
	node := p.arena.New(tree.KindVersionControl, "Version control")
	if err := p.arena.Attach(p.node, node, -1); err != nil {
		p.arena.Free(node)
		return err
	}
	p.repo = repo
	return nil
}

// InstallPatternEditor attaches a pattern-editor child.
func (p *Project) InstallPatternEditor() error {
	if p.editor != nil {
		return fmt.Errorf("project %s: pattern editor already installed", p.id)
	}
	node := p.arena.New(tree.KindPatternEditor, "Patterns")
	if err := p.arena.Attach(p.node, node, -1); err != nil {
		p.arena.Free(node)
		return err
	}
	p.editor = &PatternEditor{node: node, Zoom: 1}
	return nil
}

// AddTrack appends t to the project.
func (p *Project) AddTrack(t *Track) error {
	if !t.kind.Is(tree.CapTrack) {
		return fmt.Errorf("project %s: %s is not a track kind", p.id, t.kind)
	}
	node := p.arena.New(t.kind, t.Name)
	if err := p.arena.Attach(p.node, node, -1); err != nil {
		p.arena.Free(node)
		return err
	}
	t.node = node
	p.tracks[node] = t
	return nil
}

// RemoveTrack detaches and frees the track with id.
func (p *Project) RemoveTrack(id string) bool {
	for node, t := range p.tracks {
		if t.ID == id {
			p.arena.Free(node)
			delete(p.tracks, node)
			t.node = tree.None
			return true
		}
	}
	return false
}

func (p *Project) clearTracks() {
	for node := range p.tracks {
		p.arena.Free(node)
	}
	p.tracks = make(map[tree.NodeID]*Track)
}

// SelectDefaultTarget selects the first editable track, or the project
// itself when it has none.
func (p *Project) SelectDefaultTarget() tree.NodeID {
	target, ok := p.arena.FirstChildWith(p.node, tree.CapEditableTrack)
	if !ok {
		target = p.node
	}
	if err := p.arena.Select(target); err != nil {
		p.logger.Warn("default target not selected", zap.String("project_id", p.id), zap.Error(err))
		return tree.None
	}
	return target
}

// Rename changes the display name, moves the document file and notifies
// observers.
func (p *Project) Rename(ctx context.Context, name string) error {
	if p.doc != nil && p.doc.FullPath() != "" {
		if err := p.doc.Rename(name); err != nil {
			return err
		}
	}
	p.name = name
	if err := p.arena.SetName(p.node, name); err != nil {
		return err
	}
	p.bus.Publish(ctx, events.Event{Kind: events.ChangeProjectInfo, ProjectID: p.id, Name: name})
	return nil
}

// Save persists the project through its document.
func (p *Project) Save(ctx context.Context) error {
	if p.doc == nil {
		return ErrNoDocument
	}
	return p.doc.Save(ctx)
}

// Load reads path through the document and announces the new content.
func (p *Project) Load(ctx context.Context, path string) error {
	if p.doc == nil {
		return ErrNoDocument
	}
	if err := p.doc.Load(ctx, path); err != nil {
		return err
	}
	p.BroadcastReloadProjectContent(ctx)
	first, last := p.BroadcastChangeProjectBeatRange(ctx)
	p.BroadcastChangeViewBeatRange(ctx, first, last)
	return nil
}

func (p *Project) serializeInfo() *serialization.Data {
	d := serialization.New(serialization.TypeMetadata).
		Set(serialization.KeyName, p.name).
		Set(serialization.KeyAuthor, p.info.Author).
		Set(serialization.KeyDescription, p.info.Description).
		Set(serialization.KeyLicense, p.info.License).
		Set(serialization.KeyTemperament, p.info.Temperament)
	if !p.info.CreatedAt.IsZero() {
		d.Set(serialization.KeyCreatedAt, p.info.CreatedAt.Format(time.RFC3339))
	}
	return d
}

func (p *Project) deserializeInfo(d *serialization.Data) {
	if d == nil {
		return
	}
	if name := d.String(serialization.KeyName, ""); name != "" {
		p.name = name
	}
	p.info.Author = d.String(serialization.KeyAuthor, "")
	p.info.Description = d.String(serialization.KeyDescription, "")
	p.info.License = d.String(serialization.KeyLicense, "")
	p.info.Temperament = d.String(serialization.KeyTemperament, "")
	if ts, err := time.Parse(time.RFC3339, d.String(serialization.KeyCreatedAt, "")); err == nil {
		p.info.CreatedAt = ts
	}
}

// SaveDocument implements document.Owner.
func (p *Project) SaveDocument() (*serialization.Data, error) {
	d := serialization.New(serialization.TypeProject).
		Set(serialization.KeyID, p.id).
		Set(serialization.KeyName, p.name)

	d.AppendChild(p.serializeInfo())
	d.AppendChild(p.timeline.Serialize())
	if p.repo != nil {
		d.AppendChild(serialization.New(serialization.TypeVersionControl))
	}
	if p.editor != nil {
		e := serialization.New(serialization.TypePatternEditor).
			Set(serialization.KeyZoom, p.editor.Zoom)
		if p.editor.SelectedClip != "" {
			e.Set(serialization.KeySelectedClip, p.editor.SelectedClip)
		}
		d.AppendChild(e)
	}
	for _, t := range p.Tracks() {
		d.AppendChild(t.Serialize())
	}
	return d, nil
}

// LoadDocument implements document.Owner. It replaces the identity,
// metadata, timeline and tracks, and installs the subsystems the document
// declares.
func (p *Project) LoadDocument(d *serialization.Data) error {
	if !d.HasType(serialization.TypeProject) {
		return ErrNotProject
	}

	if id := d.String(serialization.KeyID, ""); id != "" {
		p.id = id
	}
	if name := d.String(serialization.KeyName, ""); name != "" {
		p.name = name
	}
	p.deserializeInfo(d.ChildWithName(serialization.TypeMetadata))
	_ = p.arena.SetName(p.node, p.name)

	if d.ChildWithName(serialization.TypeVersionControl) != nil && p.repo == nil {
		repo, err := vcs.Open(p.id, p.vcsOpts)
		if err != nil {
			return err
		}
		if err := p.InstallVersionControl(repo); err != nil {
			return err
		}
	}
	if e := d.ChildWithName(serialization.TypePatternEditor); e != nil {
		if p.editor == nil {
			if err := p.InstallPatternEditor(); err != nil {
				return err
			}
		}
		p.editor.Zoom = float32(e.Float(serialization.KeyZoom, 1))
		p.editor.SelectedClip = e.String(serialization.KeySelectedClip, "")
	}

	p.DeserializeTracks(d)
	p.timeline.Deserialize(d.ChildWithName(serialization.TypeTimeline))
	return nil
}

// DeserializeTracks replaces the tracks with the track children of d.
// Every other child of d is ignored.
func (p *Project) DeserializeTracks(d *serialization.Data) int {
	p.clearTracks()
	n := 0
	for _, c := range d.Children {
		t, ok := deserializeTrack(c)
		if !ok {
			continue
		}
		if err := p.AddTrack(t); err != nil {
			p.logger.Warn("track not attached", zap.String("track_id", t.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// ApplySnapshots replaces the content with items from version control.
func (p *Project) ApplySnapshots(snaps []vcs.Snapshot) {
	p.clearTracks()
	for _, s := range snaps {
		switch s.Kind {
		case vcs.KindMetadata:
			p.deserializeInfo(s.Data)
			_ = p.arena.SetName(p.node, p.name)
		case vcs.KindTimeline:
			p.timeline.Deserialize(s.Data)
		case vcs.KindTrack:
			if t, ok := deserializeTrack(s.Data); ok {
				if err := p.AddTrack(t); err != nil {
					p.logger.Warn("track not attached", zap.String("track_id", t.ID), zap.Error(err))
				}
			}
		}
	}
}

// InfoSnapshots implements vcs.Source.
func (p *Project) InfoSnapshots() []vcs.Snapshot {
	return []vcs.Snapshot{
		{Item: vcs.Item{ID: vcs.KindMetadata, Kind: vcs.KindMetadata}, Data: p.serializeInfo()},
		{Item: vcs.Item{ID: vcs.KindTimeline, Kind: vcs.KindTimeline}, Data: p.timeline.Serialize()},
	}
}

// AllSnapshots implements vcs.Source.
func (p *Project) AllSnapshots() []vcs.Snapshot {
	out := p.InfoSnapshots()
	for _, t := range p.Tracks() {
		out = append(out, vcs.Snapshot{
			Item: vcs.Item{ID: t.ID, Kind: vcs.KindTrack},
			Data: t.Serialize(),
		})
	}
	return out
}
