package midiimport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/events"
	"github.com/fyrsmithlabs/scorekeep/internal/project"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
)

func writeTestMIDI(t *testing.T) string {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)

	var lead smf.Track
	lead.Add(0, smf.MetaTrackSequenceName("Lead"))
	lead.Add(0, smf.MetaMeter(3, 4))
	lead.Add(0, midi.NoteOn(0, 60, 127))
	lead.Add(960, midi.NoteOff(0, 60))
	lead.Add(0, midi.NoteOn(0, 64, 100))
	lead.Add(1920, midi.NoteOff(0, 64))
	lead.Add(0, midi.ControlChange(0, 7, 127))
	lead.Close(0)
	require.NoError(t, s.Add(lead))

	var conductor smf.Track
	conductor.Add(0, smf.MetaTempo(120))
	conductor.Add(960*8, smf.MetaTempo(180))
	conductor.Close(0)
	require.NoError(t, s.Add(conductor))

	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, s.WriteFile(path))
	return path
}

func newProject(t *testing.T) (*project.Project, *events.Recorder) {
	t.Helper()
	bus := events.NewBus(nil)
	rec := &events.Recorder{}
	bus.Subscribe(rec)
	p := project.New(project.Options{Name: "song", Arena: tree.NewArena(), Bus: bus})
	p.SetDocument(document.NewFile(p, filepath.Join(t.TempDir(), "song.helio")))
	return p, rec
}

func TestImporter_Import(t *testing.T) {
	file := writeTestMIDI(t)
	p, rec := newProject(t)

	require.NoError(t, New(nil).Import(context.Background(), p, file))

	tracks := p.Tracks()
	require.Len(t, tracks, 3)

	assert.Equal(t, "Lead - Volume", tracks[0].Name)
	assert.Equal(t, tree.KindAutomationTrack, tracks[0].Kind())
	assert.Equal(t, 7, tracks[0].Controller)

	assert.Equal(t, "Lead", tracks[1].Name)
	assert.Equal(t, tree.KindPianoTrack, tracks[1].Kind())
	require.Len(t, tracks[1].Notes, 2)
	assert.Equal(t, 60, tracks[1].Notes[0].Key)
	assert.InDelta(t, 1.0, tracks[1].Notes[0].Length, 0.001)
	assert.InDelta(t, 1.0, tracks[1].Notes[1].Beat, 0.001)
	assert.InDelta(t, 2.0, tracks[1].Notes[1].Length, 0.001)
	assert.InDelta(t, 1.0, tracks[1].Notes[0].Velocity, 0.001)

	assert.Equal(t, "Track 1 - Tempo", tracks[2].Name)
	assert.Equal(t, TempoController, tracks[2].Controller)
	require.Len(t, tracks[2].Events, 2)
	assert.InDelta(t, 8.0, tracks[2].Events[1].Beat, 0.001)
	assert.InDelta(t, 0.5, tracks[2].Events[1].Value, 0.001)

	require.Len(t, p.Timeline().TimeSignatures, 1)
	assert.Equal(t, 3, p.Timeline().TimeSignatures[0].Numerator)

	assert.Equal(t, []events.Kind{
		events.ReloadProjectContent,
		events.ChangeProjectBeatRange,
		events.ChangeViewBeatRange,
	}, rec.Kinds())
	assert.True(t, document.Exists(p.FullPath()))
}

func TestImporter_Unreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mid")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))
	p, rec := newProject(t)

	err := New(nil).Import(context.Background(), p, path)

	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Empty(t, p.Tracks())
	assert.Empty(t, rec.Events)
	assert.False(t, document.Exists(p.FullPath()))
}

func TestScanTrack_RetriggeredKey(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 127))
	tr.Add(960, midi.NoteOn(0, 60, 64))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Close(0)

	scan := scanTrack(tr, 960, 0)

	require.Len(t, scan.notes, 2)
	assert.InDelta(t, 0.0, scan.notes[0].Beat, 0.001)
	assert.InDelta(t, 1.0, scan.notes[0].Length, 0.001)
	assert.InDelta(t, 1.0, scan.notes[0].Velocity, 0.001)
	assert.InDelta(t, 1.0, scan.notes[1].Beat, 0.001)
	assert.InDelta(t, 1.0, scan.notes[1].Length, 0.001)
	assert.Equal(t, 60, scan.notes[1].Key)
}

func TestControllerName(t *testing.T) {
	assert.Equal(t, "Tempo", controllerName(TempoController))
	assert.Equal(t, "Volume", controllerName(7))
	assert.Equal(t, "Controller 20", controllerName(20))
}
