// Package document implements the persistence handle behind a project.
//
// A Document knows where its content lives on disk and how to move bytes
// between the file and its Owner. The Owner decides what the content is;
// the Document only encodes, decodes and writes it.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
)

// Extension is the file extension of project documents.
const Extension = "helio"

var (
	// ErrNotFound indicates the document file does not exist.
	ErrNotFound = errors.New("document: file not found")

	// ErrCorrupt indicates the file could not be decoded or applied.
	ErrCorrupt = errors.New("document: corrupt content")

	// ErrNoPath indicates a save of a document that has no location.
	ErrNoPath = errors.New("document: no location")
)

// Owner produces and consumes the serialized content of a document.
type Owner interface {
	SaveDocument() (*serialization.Data, error)
	LoadDocument(d *serialization.Data) error
}

// Document is the persistence handle a project holds.
type Document interface {
	// Load reads path and applies it to the owner. On success the
	// document adopts path as its location.
	Load(ctx context.Context, path string) error
	// Save writes the owner's content to the current location.
	Save(ctx context.Context) error
	// FullPath returns the canonical location, or "" when there is none.
	FullPath() string
	// Rename moves the document to a sibling file named name.
	Rename(name string) error
}

// Factory creates a document for owner at path. path may be empty.
type Factory func(owner Owner, path string) Document

// Canonical returns the form of path used for identity comparisons: an
// absolute, cleaned path. Symlinks are not resolved.
func Canonical(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Slot returns a path inside dir for a new document called name that does
// not collide with an existing file.
func Slot(dir, name string) string {
	base := sanitizeName(name)
	candidate := filepath.Join(dir, base+"."+Extension)
	for i := 2; fileExists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d).%s", base, i, Extension))
	}
	return Canonical(candidate)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "Untitled"
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	return fileExists(path)
}

// File is a Document stored as a single file.
type File struct {
	owner  Owner
	path   string
	mirror bool
	logger *zap.Logger
}

// Option configures a File.
type Option func(*File)

// WithDebugMirror makes every save also write a YAML copy next to the file.
func WithDebugMirror(enabled bool) Option {
	return func(f *File) { f.mirror = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFile returns a file document for owner at path.
func NewFile(owner Owner, path string, opts ...Option) *File {
	f := &File{
		owner:  owner,
		path:   Canonical(path),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFactory returns a Factory producing File documents.
func NewFactory(opts ...Option) Factory {
	return func(owner Owner, path string) Document {
		return NewFile(owner, path, opts...)
	}
}

// FullPath implements Document.
func (f *File) FullPath() string {
	return f.path
}

func codecFor(path string) serialization.Codec {
	if c, ok := serialization.ForExtension(filepath.Ext(path)); ok {
		return c
	}
	return serialization.JSON
}

// Load implements Document.
func (f *File) Load(ctx context.Context, path string) error {
	path = Canonical(path)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read document: %w", err)
	}

	d, err := codecFor(path).Decode(b)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if err := f.owner.LoadDocument(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	f.path = path
	f.logger.Debug("document loaded", zap.String("path", path))
	return nil
}

// Save implements Document.
func (f *File) Save(ctx context.Context) error {
	if f.path == "" {
		return ErrNoPath
	}
	d, err := f.owner.SaveDocument()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	b, err := codecFor(f.path).Encode(d)
	if err != nil {
		return err
	}
	if err := writeFile(f.path, b); err != nil {
		return err
	}

	if f.mirror {
		yb, err := serialization.YAML.Encode(d)
		if err == nil {
			err = writeFile(f.path+".yaml", yb)
		}
		if err != nil {
			f.logger.Warn("debug mirror not written", zap.String("path", f.path), zap.Error(err))
		}
	}

	f.logger.Debug("document saved", zap.String("path", f.path), zap.Int("bytes", len(b)))
	return nil
}

// Rename implements Document. The file is moved only when it exists.
func (f *File) Rename(name string) error {
	if f.path == "" {
		return ErrNoPath
	}
	dir := filepath.Dir(f.path)
	target := Slot(dir, name)
	if fileExists(f.path) {
		if err := os.Rename(f.path, target); err != nil {
			return fmt.Errorf("rename document: %w", err)
		}
	}
	f.path = target
	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}
