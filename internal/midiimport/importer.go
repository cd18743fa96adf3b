// Package midiimport fills a project from a Standard MIDI File.
package midiimport

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/project"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
)

// TempoController is the automation controller number of tempo tracks.
const TempoController = 81

// MaxTempo is the tempo, in BPM, that maps to automation value 1.
const MaxTempo = 360.0

// ErrUnreadable indicates the file is not a readable MIDI file.
var ErrUnreadable = errors.New("midiimport: unreadable midi file")

var palette = []string{
	"#90c0f0", "#c090f0", "#f0c090", "#90f0c0",
	"#f09090", "#f0f090", "#90f0f0", "#e0e0e0",
}

// Importer converts MIDI tracks into project tracks.
type Importer struct {
	logger *zap.Logger
}

// New returns an importer. A nil logger disables logging.
func New(logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{logger: logger}
}

// Import reads file and appends its tracks to p.
//
// Every MIDI track with notes becomes a piano track. A MIDI track with
// controller or tempo events also becomes an automation track named
// "<track> - <controller>". Time signatures go to the project timeline,
// which is reset first. Observers are notified and the project is saved
// once at the end.
func (im *Importer) Import(ctx context.Context, p *project.Project, file string) error {
	s, err := smf.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreadable, file, err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return fmt.Errorf("%w: %s: only metric time format is supported", ErrUnreadable, file)
	}
	resolution := float32(ticks.Resolution())

	p.Timeline().Reset()

	for i, mt := range s.Tracks {
		scan := scanTrack(mt, resolution, i)
		colour := palette[i%len(palette)]

		if len(scan.events) > 0 {
			tr := project.NewTrack(tree.KindAutomationTrack, scan.name+" - "+controllerName(scan.controller))
			tr.Colour = colour
			tr.Controller = scan.controller
			tr.Events = scan.events
			if err := p.AddTrack(tr); err != nil {
				return err
			}
		}
		if len(scan.notes) > 0 {
			tr := project.NewTrack(tree.KindPianoTrack, scan.name)
			tr.Colour = colour
			tr.Notes = scan.notes
			if err := p.AddTrack(tr); err != nil {
				return err
			}
		}
		p.Timeline().TimeSignatures = append(p.Timeline().TimeSignatures, scan.meters...)
	}

	im.logger.Info("midi imported",
		zap.String("file", file),
		zap.String("project_id", p.ID()),
		zap.Int("midi_tracks", len(s.Tracks)),
		zap.Int("tracks", len(p.Tracks())),
	)

	p.BroadcastReloadProjectContent(ctx)
	first, last := p.BroadcastChangeProjectBeatRange(ctx)
	p.BroadcastChangeViewBeatRange(ctx, first, last)
	return p.Save(ctx)
}

type trackScan struct {
	name       string
	controller int
	notes      []project.Note
	events     []project.AutomationEvent
	meters     []project.TimeSignature
}

type noteKey struct {
	channel uint8
	key     uint8
}

type pending struct {
	beat     float32
	velocity uint8
}

func scanTrack(mt smf.Track, resolution float32, index int) trackScan {
	scan := trackScan{name: "Track " + strconv.Itoa(index)}
	open := make(map[noteKey]pending)

	var absTicks uint64
	for _, ev := range mt {
		absTicks += uint64(ev.Delta)
		beat := float32(absTicks) / resolution

		var (
			text                  string
			bpm                   float64
			num, denom            uint8
			channel, key, vel, cc uint8
		)
		msg := midi.Message(ev.Message)

		switch {
		case ev.Message.GetMetaTrackName(&text):
			scan.name = text
		case ev.Message.GetMetaTempo(&bpm):
			scan.controller = TempoController
			scan.events = append(scan.events, project.AutomationEvent{
				ID:    "e" + strconv.Itoa(len(scan.events)),
				Beat:  beat,
				Value: float32(min(bpm/MaxTempo, 1)),
			})
		case ev.Message.GetMetaMeter(&num, &denom):
			scan.meters = append(scan.meters, project.TimeSignature{
				ID:          "ts" + strconv.Itoa(index) + "_" + strconv.Itoa(len(scan.meters)),
				Beat:        beat,
				Numerator:   int(num),
				Denominator: int(denom),
			})
		case msg.GetNoteStart(&channel, &key, &vel):
			// A retriggered key ends the note still sounding on it.
			scan.closeNote(open, noteKey{channel, key}, beat, resolution)
			open[noteKey{channel, key}] = pending{beat: beat, velocity: vel}
		case msg.GetNoteEnd(&channel, &key):
			scan.closeNote(open, noteKey{channel, key}, beat, resolution)
		case msg.GetControlChange(&channel, &cc, &vel):
			scan.controller = int(cc)
			scan.events = append(scan.events, project.AutomationEvent{
				ID:    "e" + strconv.Itoa(len(scan.events)),
				Beat:  beat,
				Value: float32(vel) / 127,
			})
		}
	}
	return scan
}

func (scan *trackScan) closeNote(open map[noteKey]pending, k noteKey, beat, resolution float32) {
	start, ok := open[k]
	if !ok {
		return
	}
	delete(open, k)
	scan.notes = append(scan.notes, project.Note{
		ID:       "n" + strconv.Itoa(len(scan.notes)),
		Beat:     start.beat,
		Length:   max(beat-start.beat, 1/resolution),
		Key:      int(k.key),
		Velocity: float32(start.velocity) / 127,
	})
}

func controllerName(cc int) string {
	switch cc {
	case TempoController:
		return "Tempo"
	case 1:
		return "Modulation Wheel"
	case 7:
		return "Volume"
	case 10:
		return "Pan"
	case 11:
		return "Expression"
	case 64:
		return "Sustain Pedal"
	}
	return "Controller " + strconv.Itoa(cc)
}
