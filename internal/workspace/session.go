package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/project"
	"github.com/fyrsmithlabs/scorekeep/internal/state"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
)

// Store persists the workspace between runs. *state.Store implements it.
type Store interface {
	RecentList
	Find(ctx context.Context, id string) (state.RecentProject, error)
	Recent(ctx context.Context, limit int) ([]state.RecentProject, error)
	SaveSession(ctx context.Context, s state.Session) error
	LoadSession(ctx context.Context) (state.Session, bool, error)
}

// Summary describes an open project.
type Summary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Path      string  `json:"path,omitempty"`
	Tracks    int     `json:"tracks"`
	FirstBeat float32 `json:"first_beat"`
	LastBeat  float32 `json:"last_beat"`
	Selected  bool    `json:"selected"`
}

// Session serializes access to a Root so that the HTTP API, the watcher
// and the CLI can share one workspace.
type Session struct {
	mu     sync.Mutex
	root   *Root
	store  Store
	logger *zap.Logger
}

// NewSession wraps root. store may be nil, which disables autosave,
// autoload and recent projects.
func NewSession(root *Root, store Store) *Session {
	return &Session{root: root, store: store, logger: root.logger}
}

// Do runs fn with exclusive access to the root.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, r *Root) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, s.root)
}

// OpenFromFile is Root.OpenFromFile under the session lock.
func (s *Session) OpenFromFile(ctx context.Context, path string) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.OpenFromFile(ctx, path)
	})
}

// Checkout is Root.Checkout under the session lock.
func (s *Session) Checkout(ctx context.Context, id, name string) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.Checkout(ctx, id, name)
	})
}

// CreateEmpty is Root.CreateEmpty under the session lock.
func (s *Session) CreateEmpty(ctx context.Context, location string) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.CreateEmpty(ctx, location)
	})
}

// CreateEmptyNamed is Root.CreateEmptyNamed under the session lock.
func (s *Session) CreateEmptyNamed(ctx context.Context, name string) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.CreateEmptyNamed(ctx, name)
	})
}

// CreateExample is Root.CreateExample under the session lock.
func (s *Session) CreateExample(ctx context.Context) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.CreateExample(ctx)
	})
}

// ImportExternal is Root.ImportExternal under the session lock.
func (s *Session) ImportExternal(ctx context.Context, file string) (Summary, error) {
	return s.run(ctx, func(ctx context.Context, r *Root) (*project.Project, error) {
		return r.ImportExternal(ctx, file)
	})
}

// CloseProject is Root.CloseProject under the session lock.
func (s *Session) CloseProject(ctx context.Context, id string) error {
	return s.Do(ctx, func(ctx context.Context, r *Root) error {
		return r.CloseProject(ctx, id)
	})
}

func (s *Session) run(ctx context.Context, op func(context.Context, *Root) (*project.Project, error)) (Summary, error) {
	var sum Summary
	err := s.Do(ctx, func(ctx context.Context, r *Root) error {
		p, err := op(ctx, r)
		if err != nil {
			return err
		}
		sum = r.summarize(p)
		return nil
	})
	return sum, err
}

func (r *Root) summarize(p *project.Project) Summary {
	first, last := p.BeatRange()
	_, owner := r.Selected()
	return Summary{
		ID:        p.ID(),
		Name:      p.Name(),
		Path:      p.FullPath(),
		Tracks:    len(p.Tracks()),
		FirstBeat: first,
		LastBeat:  last,
		Selected:  owner == p,
	}
}

// Summaries lists the open projects in tree order.
func (s *Session) Summaries(ctx context.Context) []Summary {
	var out []Summary
	_ = s.Do(ctx, func(_ context.Context, r *Root) error {
		for _, p := range r.Projects() {
			out = append(out, r.summarize(p))
		}
		return nil
	})
	return out
}

// History returns the revisions of the project with id, newest first.
func (s *Session) History(ctx context.Context, id string) ([]vcs.Revision, error) {
	var out []vcs.Revision
	err := s.Do(ctx, func(_ context.Context, r *Root) error {
		p, ok := r.FindByID(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		if p.Repository() == nil {
			return nil
		}
		var err error
		out, err = p.Repository().History()
		return err
	})
	return out, err
}

// CommitAll records every item of the project with id.
func (s *Session) CommitAll(ctx context.Context, id, message string) (string, error) {
	var hash string
	err := s.Do(ctx, func(ctx context.Context, r *Root) error {
		p, ok := r.FindByID(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		if p.Repository() == nil {
			return vcs.ErrNotCloned
		}
		var err error
		hash, err = p.Repository().CommitAll(ctx, p, message)
		return err
	})
	return hash, err
}

// Recent lists recently used projects, newest first.
func (s *Session) Recent(ctx context.Context, limit int) ([]state.RecentProject, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Recent(ctx, limit)
}

// LoadRecent opens a recently used project: from its file when it still
// exists, otherwise by checking out its history.
func (s *Session) LoadRecent(ctx context.Context, id string) (Summary, error) {
	if s.store == nil {
		return Summary{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	info, err := s.store.Find(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return Summary{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return Summary{}, err
	}
	if info.Path != "" && document.Exists(info.Path) {
		return s.OpenFromFile(ctx, info.Path)
	}
	return s.Checkout(ctx, info.ID, info.Title)
}

// Autosave stores the open project paths and the selection.
func (s *Session) Autosave(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var session state.Session
	_ = s.Do(ctx, func(_ context.Context, r *Root) error {
		for _, p := range r.Projects() {
			if path := p.FullPath(); path != "" && document.Exists(path) {
				session.Paths = append(session.Paths, path)
			}
		}
		if _, owner := r.Selected(); owner != nil {
			session.Selected = owner.ID()
		}
		return nil
	})
	return s.store.SaveSession(ctx, session)
}

// Autoload restores the last saved session. The settings and instruments
// nodes are always added. Without a saved session an example project is
// created instead.
func (s *Session) Autoload(ctx context.Context) error {
	var (
		session state.Session
		ok      bool
	)
	if s.store != nil {
		var err error
		session, ok, err = s.store.LoadSession(ctx)
		if err != nil {
			s.logger.Warn("workspace session unreadable, starting fresh", zap.Error(err))
			ok = false
		}
	}

	return s.Do(ctx, func(ctx context.Context, r *Root) error {
		if _, err := r.AddAuxiliary(tree.KindSettings, 0); err != nil {
			return err
		}
		if _, err := r.AddAuxiliary(tree.KindInstruments, -1); err != nil {
			return err
		}

		if !ok {
			_, err := r.CreateExample(ctx)
			return err
		}

		// Projects are inserted at a fixed index, so the last one goes
		// first to keep the saved order.
		for i := len(session.Paths) - 1; i >= 0; i-- {
			if _, err := r.OpenFromFile(ctx, session.Paths[i]); err != nil {
				s.logger.Warn("session project not restored",
					zap.String("path", session.Paths[i]),
					zap.Error(err),
				)
			}
		}
		if p, found := r.FindByID(session.Selected); found {
			p.SelectDefaultTarget()
		}
		s.logger.Info("workspace session restored",
			zap.Int("projects", len(r.Projects())),
			zap.Int("saved", len(session.Paths)),
		)
		return nil
	})
}

// Close saves the session and frees the workspace.
func (s *Session) Close(ctx context.Context) error {
	err := s.Autosave(ctx)
	_ = s.Do(ctx, func(ctx context.Context, r *Root) error {
		r.Close(ctx)
		return nil
	})
	return err
}
