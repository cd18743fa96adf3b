// Package vcs keeps the revision history of a project in a git repository.
//
// Each project owns one repository. Project items are stored as JSON files:
//
//	metadata.json      project info (name, author, license, ...)
//	timeline.json      annotations, key and time signatures
//	tracks/<id>.json   one file per track
//
// Metadata and timeline are the non-deletable items. CommitProjectInfo
// snapshots only those, so the first commit of a fresh project never
// contains tracks.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
)

var (
	// ErrNothingToCommit indicates the snapshot matches the last revision.
	ErrNothingToCommit = errors.New("vcs: nothing to commit")

	// ErrNoRemote indicates a clone without a configured remote base.
	ErrNoRemote = errors.New("vcs: no remote configured")

	// ErrNotCloned indicates an operation on a repository that still waits
	// for its clone.
	ErrNotCloned = errors.New("vcs: repository not cloned")
)

// Item kinds.
const (
	KindMetadata = "metadata"
	KindTimeline = "timeline"
	KindTrack    = "track"
)

const tracksDir = "tracks"

// Item identifies one versioned project item.
type Item struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Snapshot is an item together with its serialized state.
type Snapshot struct {
	Item
	Data *serialization.Data
}

// Revision is one commit of the history.
type Revision struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
	Items   []Item    `json:"items"`
}

// Source provides the items a commit records.
type Source interface {
	// InfoSnapshots returns the non-deletable items.
	InfoSnapshots() []Snapshot
	// AllSnapshots returns every item, including tracks.
	AllSnapshots() []Snapshot
}

// Options configures repositories.
type Options struct {
	// Dir is the parent directory of on-disk repositories. Empty keeps
	// history in memory.
	Dir string
	// RemoteBase is where Clone looks for "<id>.git". It may be a URL or a
	// local directory.
	RemoteBase  string
	AuthorName  string
	AuthorEmail string
	Logger      *zap.Logger
}

// Repository is the history of one project.
type Repository struct {
	projectID string
	opts      Options
	repo      *git.Repository
	logger    *zap.Logger
	now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.AuthorName == "" {
		o.AuthorName = defaultAuthorName()
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = o.AuthorName + "@localhost"
	}
	return o
}

// defaultAuthorName prefers git user.name from the global config, then
// $USER.
func defaultAuthorName() string {
	cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope)
	if err == nil && cfg.User.Name != "" {
		return cfg.User.Name
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "scorekeep"
}

// Open returns the repository of projectID, creating it when needed.
func Open(projectID string, opts Options) (*Repository, error) {
	r := newRepository(projectID, opts)
	if r.opts.Dir == "" {
		repo, err := git.Init(memory.NewStorage(), memfs.New())
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		r.repo = repo
		return r, nil
	}

	dir := r.dir()
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dir, err)
	}
	r.repo = repo
	return r, nil
}

// ForClone returns a repository that is populated by Clone.
func ForClone(projectID string, opts Options) *Repository {
	return newRepository(projectID, opts)
}

func newRepository(projectID string, opts Options) *Repository {
	opts = opts.withDefaults()
	return &Repository{
		projectID: projectID,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("project_id", projectID)),
		now:       time.Now,
	}
}

func (r *Repository) dir() string {
	return filepath.Join(r.opts.Dir, safeName(r.projectID))
}

// ProjectID returns the id the repository belongs to.
func (r *Repository) ProjectID() string {
	return r.projectID
}

// Ready reports whether the repository can record and read history.
func (r *Repository) Ready() bool {
	return r.repo != nil
}

// RemoteURL returns the clone source for this project.
func (r *Repository) RemoteURL() string {
	base := r.opts.RemoteBase
	if base == "" {
		return ""
	}
	name := safeName(r.projectID) + ".git"
	if strings.Contains(base, "://") || strings.HasPrefix(base, "git@") {
		return strings.TrimSuffix(base, "/") + "/" + name
	}
	return filepath.Join(base, name)
}

// CommitProjectInfo records the non-deletable items of src. Tracks already
// in the history are kept as they are.
func (r *Repository) CommitProjectInfo(ctx context.Context, src Source) (string, error) {
	return r.commit(ctx, src.InfoSnapshots(), false, "project info")
}

// CommitAll records every item of src. Tracks that are gone from src are
// removed from the history.
func (r *Repository) CommitAll(ctx context.Context, src Source, message string) (string, error) {
	if message == "" {
		message = "project snapshot"
	}
	return r.commit(ctx, src.AllSnapshots(), true, message)
}

func (r *Repository) commit(ctx context.Context, snaps []Snapshot, prune bool, message string) (string, error) {
	if r.repo == nil {
		return "", ErrNotCloned
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	fs := wt.Filesystem

	keep := make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		b, err := serialization.JSON.Encode(s.Data)
		if err != nil {
			return "", fmt.Errorf("encode %s %s: %w", s.Kind, s.ID, err)
		}
		p := itemPath(s.Item)
		keep[p] = struct{}{}
		if err := util.WriteFile(fs, p, b, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", p, err)
		}
		if _, err := wt.Add(p); err != nil {
			return "", fmt.Errorf("stage %s: %w", p, err)
		}
	}

	if prune {
		if err := r.pruneTracks(wt, fs, keep); err != nil {
			return "", err
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.opts.AuthorName,
			Email: r.opts.AuthorEmail,
			When:  r.now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	r.logger.Debug("history committed",
		zap.String("hash", hash.String()),
		zap.String("message", message),
		zap.Int("items", len(snaps)),
	)
	return hash.String(), nil
}

func (r *Repository) pruneTracks(wt *git.Worktree, fs billy.Filesystem, keep map[string]struct{}) error {
	entries, err := fs.ReadDir(tracksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list tracks: %w", err)
	}
	for _, e := range entries {
		p := path.Join(tracksDir, e.Name())
		if _, ok := keep[p]; ok {
			continue
		}
		if _, err := wt.Remove(p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Clone fetches the history of the project from the remote and checks
// out its head.
func (r *Repository) Clone(ctx context.Context) error {
	url := r.RemoteURL()
	if url == "" {
		return ErrNoRemote
	}

	opts := &git.CloneOptions{URL: url}
	var (
		repo *git.Repository
		err  error
	)
	if r.opts.Dir == "" {
		repo, err = git.CloneContext(ctx, memory.NewStorage(), memfs.New(), opts)
	} else {
		repo, err = git.PlainCloneContext(ctx, r.dir(), false, opts)
	}
	if err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}

	r.repo = repo
	r.logger.Info("history cloned", zap.String("remote", url))
	return nil
}

// History returns the revisions reachable from HEAD, newest first. An
// empty repository has an empty history.
func (r *Repository) History() ([]Revision, error) {
	if r.repo == nil {
		return nil, ErrNotCloned
	}
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	defer iter.Close()

	var out []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		items, err := commitItems(c)
		if err != nil {
			return err
		}
		out = append(out, Revision{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When,
			Items:   items,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HeadSnapshot returns the items recorded by the newest revision.
func (r *Repository) HeadSnapshot() ([]Snapshot, error) {
	if r.repo == nil {
		return nil, ErrNotCloned
	}
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("head commit: %w", err)
	}

	files, err := c.Files()
	if err != nil {
		return nil, err
	}
	var out []Snapshot
	err = files.ForEach(func(f *object.File) error {
		item, ok := parseItemPath(f.Name)
		if !ok {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return err
		}
		d, err := serialization.JSON.Decode([]byte(content))
		if err != nil {
			return fmt.Errorf("decode %s: %w", f.Name, err)
		}
		out = append(out, Snapshot{Item: item, Data: d})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortItems(out)
	return out, nil
}

func commitItems(c *object.Commit) ([]Item, error) {
	files, err := c.Files()
	if err != nil {
		return nil, err
	}
	var items []Item
	err = files.ForEach(func(f *object.File) error {
		if item, ok := parseItemPath(f.Name); ok {
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func itemPath(it Item) string {
	switch it.Kind {
	case KindMetadata:
		return "metadata.json"
	case KindTimeline:
		return "timeline.json"
	default:
		return path.Join(tracksDir, safeName(it.ID)+".json")
	}
}

func parseItemPath(p string) (Item, bool) {
	switch {
	case p == "metadata.json":
		return Item{ID: KindMetadata, Kind: KindMetadata}, true
	case p == "timeline.json":
		return Item{ID: KindTimeline, Kind: KindTimeline}, true
	case strings.HasPrefix(p, tracksDir+"/") && strings.HasSuffix(p, ".json"):
		id := strings.TrimSuffix(strings.TrimPrefix(p, tracksDir+"/"), ".json")
		return Item{ID: id, Kind: KindTrack}, true
	}
	return Item{}, false
}

// sortItems orders metadata, then timeline, then tracks by id.
func sortItems(snaps []Snapshot) {
	rank := func(k string) int {
		switch k {
		case KindMetadata:
			return 0
		case KindTimeline:
			return 1
		}
		return 2
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		ri, rj := rank(snaps[i].Kind), rank(snaps[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return snaps[i].ID < snaps[j].ID
	})
}

func safeName(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
