// Package state persists workspace state between runs: the recent
// projects list and the last open session.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// MemoryPath opens a store that lives only as long as the process.
const MemoryPath = ":memory:"

// ErrNotFound indicates a missing recent project.
var ErrNotFound = errors.New("state: not found")

// RecentProject is one entry of the recent projects list.
type RecentProject struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	// UnloadedAt is zero while the project is open.
	UnloadedAt time.Time `json:"unloaded_at,omitempty"`
}

// Loaded reports whether the project was open when last recorded.
func (r RecentProject) Loaded() bool {
	return r.UnloadedAt.IsZero()
}

// Session is the open workspace as it was last saved.
type Session struct {
	// Paths lists the documents of open projects in tree order.
	Paths []string `json:"paths"`
	// Selected is the id of the project owning the selection, if any.
	Selected string    `json:"selected,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store is a SQLite-backed state store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection of an in-memory database is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS recent_projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		unloaded_at INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create recent_projects table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS session (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Touch records p as loaded and recently updated.
func (s *Store) Touch(ctx context.Context, p RecentProject) error {
	if p.ID == "" {
		return fmt.Errorf("recent project id is required")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO recent_projects (id, title, path, updated_at, unloaded_at)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = CASE WHEN excluded.path = '' THEN recent_projects.path ELSE excluded.path END,
			updated_at = excluded.updated_at,
			unloaded_at = 0`,
		p.ID, p.Title, p.Path, toUnix(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("touch recent project: %w", err)
	}
	return nil
}

// Remember records p without marking it loaded. A new entry starts
// unloaded; an existing one keeps its loaded state.
func (s *Store) Remember(ctx context.Context, p RecentProject) error {
	if p.ID == "" {
		return fmt.Errorf("recent project id is required")
	}
	now := s.now()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO recent_projects (id, title, path, updated_at, unloaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			updated_at = excluded.updated_at`,
		p.ID, p.Title, p.Path, toUnix(p.UpdatedAt), toUnix(now))
	if err != nil {
		return fmt.Errorf("remember recent project: %w", err)
	}
	return nil
}

// MarkUnloaded records that project id was closed.
func (s *Store) MarkUnloaded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recent_projects SET unloaded_at = ? WHERE id = ?`,
		toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark unloaded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Forget removes project id from the recent list.
func (s *Store) Forget(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("forget recent project: %w", err)
	}
	return nil
}

// ForgetPath removes every entry stored at path.
func (s *Store) ForgetPath(ctx context.Context, path string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recent_projects WHERE path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("forget recent path: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Find returns the entry of project id.
func (s *Store) Find(ctx context.Context, id string) (RecentProject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, path, updated_at, unloaded_at
		FROM recent_projects WHERE id = ?`, id)
	p, err := scanRecent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RecentProject{}, ErrNotFound
	}
	return p, err
}

// FindByPath returns the entry stored at path.
func (s *Store) FindByPath(ctx context.Context, path string) (RecentProject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, path, updated_at, unloaded_at
		FROM recent_projects WHERE path = ? ORDER BY updated_at DESC LIMIT 1`, path)
	p, err := scanRecent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RecentProject{}, ErrNotFound
	}
	return p, err
}

// Recent lists entries newest first. limit <= 0 lists all.
func (s *Store) Recent(ctx context.Context, limit int) ([]RecentProject, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, path, updated_at, unloaded_at
		FROM recent_projects ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RecentProject
	for rows.Next() {
		p, err := scanRecent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecent(row scanner) (RecentProject, error) {
	var (
		p                   RecentProject
		updated, unloadedAt int64
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Path, &updated, &unloadedAt); err != nil {
		return RecentProject{}, err
	}
	p.UpdatedAt = fromUnix(updated)
	p.UnloadedAt = fromUnix(unloadedAt)
	return p, nil
}

const defaultSession = "default"

// SaveSession replaces the stored session.
func (s *Store) SaveSession(ctx context.Context, session Session) error {
	if session.SavedAt.IsZero() {
		session.SavedAt = s.now()
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO session (name, payload) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`, defaultSession, payload)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session. ok is false when none was saved.
func (s *Store) LoadSession(ctx context.Context) (session Session, ok bool, err error) {
	var payload []byte
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM session WHERE name = ?`, defaultSession).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return session, true, nil
}
