// Package watch keeps the recent-projects list in step with the project
// files in the documents directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
	"github.com/fyrsmithlabs/scorekeep/internal/state"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// EventType is what happened to a project file.
type EventType int

const (
	// EventSaved means a project file was created or rewritten.
	EventSaved EventType = iota

	// EventRemoved means a project file was deleted or moved away.
	EventRemoved
)

func (t EventType) String() string {
	if t == EventRemoved {
		return "removed"
	}
	return "saved"
}

// Event is a change to a project file.
type Event struct {
	Type      EventType
	Path      string
	ProjectID string // empty for EventRemoved
	Title     string
	Timestamp time.Time
}

// Recent is the part of the recent-projects store the watcher updates.
type Recent interface {
	Remember(ctx context.Context, p state.RecentProject) error
	ForgetPath(ctx context.Context, path string) (int, error)
}

// Watcher follows project files in one directory.
type Watcher struct {
	dir     string
	recent  Recent
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// New returns a watcher for dir. Call Start to begin watching.
func New(dir string, recent Recent, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		dir:     document.Canonical(dir),
		recent:  recent,
		logger:  logger,
		watcher: fw,
		events:  make(chan Event, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start creates the directory if needed, records the project files
// already in it and watches it until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create documents dir: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	if err := w.Scan(ctx); err != nil {
		w.logger.Warn("initial documents scan failed", zap.Error(err))
	}
	w.started = true
	go w.run(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
	if w.started {
		<-w.done
	}
}

// Events delivers handled changes. Events are dropped when nobody reads
// them.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Scan records every project file currently in the directory.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isProjectFile(e.Name()) {
			continue
		}
		w.saved(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("documents watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !isProjectFile(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.removed(ctx, ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.saved(ctx, ev.Name)
	}
}

func (w *Watcher) saved(ctx context.Context, path string) {
	id, title, err := readHeader(ctx, path)
	if err != nil {
		// Partially written or foreign files are picked up on their next write.
		w.logger.Debug("project file skipped", zap.String("path", path), zap.Error(err))
		return
	}
	if err := w.recent.Remember(ctx, state.RecentProject{ID: id, Title: title, Path: path}); err != nil {
		w.logger.Warn("recent projects not updated", zap.String("path", path), zap.Error(err))
		return
	}
	w.emit(Event{Type: EventSaved, Path: path, ProjectID: id, Title: title})
}

func (w *Watcher) removed(ctx context.Context, path string) {
	// A rename onto path (atomic save) leaves the file in place.
	if document.Exists(path) {
		w.saved(ctx, path)
		return
	}
	n, err := w.recent.ForgetPath(ctx, path)
	if err != nil {
		w.logger.Warn("recent projects not updated", zap.String("path", path), zap.Error(err))
		return
	}
	if n > 0 {
		w.emit(Event{Type: EventRemoved, Path: path})
	}
}

func (w *Watcher) emit(ev Event) {
	ev.Timestamp = time.Now()
	w.logger.Debug("project file changed",
		zap.Stringer("type", ev.Type),
		zap.String("path", ev.Path),
	)
	select {
	case w.events <- ev:
	default:
	}
}

func isProjectFile(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), "."+document.Extension)
}

// header reads only the identity of a project document.
type header struct {
	id, title string
}

func (h *header) SaveDocument() (*serialization.Data, error) {
	return nil, errors.New("read only")
}

func (h *header) LoadDocument(d *serialization.Data) error {
	if !d.HasType(serialization.TypeProject) {
		return errors.New("not a project document")
	}
	h.id = d.String(serialization.KeyID, "")
	h.title = d.String(serialization.KeyName, "")
	if h.id == "" {
		return errors.New("project document without id")
	}
	return nil
}

func readHeader(ctx context.Context, path string) (id, title string, err error) {
	h := &header{}
	if err := document.NewFile(h, "").Load(ctx, path); err != nil {
		return "", "", err
	}
	if h.title == "" {
		h.title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return h.id, h.title, nil
}
