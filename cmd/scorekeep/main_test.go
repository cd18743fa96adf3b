package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/scorekeep/internal/state"
	"github.com/fyrsmithlabs/scorekeep/internal/templates"
	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

// setupHome isolates config, state and documents in temp dirs.
func setupHome(t *testing.T) (docs string) {
	t.Helper()
	home := t.TempDir()
	docs = filepath.Join(home, "docs")
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("SCOREKEEP_WORKSPACE_DOCUMENTS_DIR", docs)
	t.Setenv("SCOREKEEP_LOGGING_LEVEL", "error")
	return docs
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, args)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCLI_WorkspacePersistsBetweenRuns(t *testing.T) {
	docs := setupHome(t)

	etude := runJSON[workspace.Summary](t, "new", "Etude")
	assert.Equal(t, "Etude", etude.Name)
	assert.Equal(t, filepath.Dir(etude.Path), docs)

	// The first run starts from the example project.
	list := runJSON[[]workspace.Summary](t, "list")
	require.Len(t, list, 2)
	assert.Equal(t, workspace.DefaultProjectName, list[0].Name)
	assert.Equal(t, etude.ID, list[1].ID)

	_, err := run(t, "close", etude.ID)
	require.NoError(t, err)

	list = runJSON[[]workspace.Summary](t, "list")
	require.Len(t, list, 1)

	recent := runJSON[[]state.RecentProject](t, "list", "--recent")
	var found bool
	for _, r := range recent {
		if r.ID == etude.ID {
			found = true
			assert.False(t, r.Loaded())
		}
	}
	assert.True(t, found)

	reopened := runJSON[workspace.Summary](t, "reopen", etude.ID)
	assert.Equal(t, etude.Path, reopened.Path)
}

func TestCLI_NewAt(t *testing.T) {
	setupHome(t)
	target := filepath.Join(t.TempDir(), "sketch.helio")

	sum := runJSON[workspace.Summary](t, "new", "--at", target)

	assert.Equal(t, "sketch", sum.Name)
	assert.FileExists(t, target)
}

func TestCLI_CommitAndHistory(t *testing.T) {
	setupHome(t)
	sum := runJSON[workspace.Summary](t, "example")

	commit := runJSON[map[string]string](t, "commit", sum.ID, "-m", "first pass")
	assert.NotEmpty(t, commit["hash"])

	history := runJSON[[]map[string]any](t, "history", sum.ID)
	var messages []any
	for _, rev := range history {
		messages = append(messages, rev["message"])
	}
	assert.Contains(t, messages, "first pass")
}

func TestCLI_Errors(t *testing.T) {
	setupHome(t)

	tests := []struct {
		name string
		args []string
	}{
		{"new without name", []string{"new"}},
		{"open missing file", []string{"open", filepath.Join(t.TempDir(), "gone.helio")}},
		{"import missing file", []string{"import", filepath.Join(t.TempDir(), "gone.mid")}},
		{"close unknown project", []string{"close", "nope"}},
		{"history unknown project", []string{"history", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestCLI_CorruptTemplateOverlay(t *testing.T) {
	docs := setupHome(t)
	overlay := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(overlay, "emptyProject.json"), []byte("{not json"), 0o600))
	t.Setenv("SCOREKEEP_WORKSPACE_TEMPLATES_DIR", overlay)

	_, err := run(t, "new", "Song")

	require.ErrorIs(t, err, templates.ErrInvalidOverlay)
	assert.NoFileExists(t, filepath.Join(docs, "Song.helio"))
}
