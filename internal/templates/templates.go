// Package templates holds the serialized project fragments new projects
// are bootstrapped from.
//
// Resources are addressed by name, where a name is the file name with its
// dot replaced by an underscore ("emptyProject.json" is
// "emptyProject_json"). Template names are compile-time constants, so a
// missing or empty resource is a programming error and MustLookup panics.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
)

// ErrInvalidOverlay indicates an overlay directory that cannot serve as
// template source.
var ErrInvalidOverlay = errors.New("templates: invalid overlay")

// Built-in template names.
const (
	EmptyProject   = "emptyProject_json"
	ExampleProject = "exampleProject_json"
)

//go:embed data/*.json
var embedded embed.FS

// Table resolves template names to payloads.
type Table struct {
	layers []fs.FS
}

// Default returns the table of embedded templates.
func Default() *Table {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(fmt.Sprintf("templates: embedded data: %v", err))
	}
	return &Table{layers: []fs.FS{sub}}
}

// WithOverlay returns a table where files in dir shadow the receiver's
// templates of the same name. An empty dir returns t unchanged.
//
// Every non-empty JSON file in dir must decode to a project document, so
// that bootstrapping from the returned table cannot fail on its input.
func (t *Table) WithOverlay(dir string) (*Table, error) {
	if dir == "" {
		return t, nil
	}
	overlay := os.DirFS(dir)
	if err := validate(overlay); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOverlay, dir, err)
	}
	layers := make([]fs.FS, 0, len(t.layers)+1)
	layers = append(layers, overlay)
	layers = append(layers, t.layers...)
	return &Table{layers: layers}, nil
}

func validate(layer fs.FS) error {
	entries, err := fs.ReadDir(layer, ".")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".json") {
			continue
		}
		b, err := fs.ReadFile(layer, e.Name())
		if err != nil {
			return err
		}
		if len(b) == 0 {
			continue
		}
		d, err := serialization.JSON.Decode(b)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if !d.HasType(serialization.TypeProject) {
			return fmt.Errorf("%s: not a project document", e.Name())
		}
	}
	return nil
}

func fileName(name string) string {
	if i := strings.LastIndex(name, "_"); i >= 0 {
		return name[:i] + "." + name[i+1:]
	}
	return name
}

// Lookup returns the payload for name. Missing and empty resources report
// false.
func (t *Table) Lookup(name string) ([]byte, bool) {
	file := fileName(name)
	for _, layer := range t.layers {
		b, err := fs.ReadFile(layer, file)
		if err == nil && len(b) > 0 {
			return b, true
		}
	}
	return nil, false
}

// MustLookup is Lookup for compile-time template names. It panics when the
// resource is missing or empty.
func (t *Table) MustLookup(name string) []byte {
	b, ok := t.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("templates: resource %q is missing or empty", name))
	}
	return b
}

// Names lists the resource names visible through the table.
func (t *Table) Names() []string {
	seen := make(map[string]struct{})
	for _, layer := range t.layers {
		entries, err := fs.ReadDir(layer, ".")
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := e.Name()
			if i := strings.LastIndex(n, "."); i >= 0 {
				n = n[:i] + "_" + n[i+1:]
			}
			seen[n] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
