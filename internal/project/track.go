package project

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
	"github.com/fyrsmithlabs/scorekeep/internal/tree"
)

// Note is one event of a piano sequence.
type Note struct {
	ID       string
	Beat     float32
	Length   float32
	Key      int
	Velocity float32
}

// AutomationEvent is one event of an automation sequence.
type AutomationEvent struct {
	ID    string
	Beat  float32
	Value float32
}

// Clip places a track's sequence on the arrangement at Beat.
type Clip struct {
	ID   string
	Beat float32
}

// Track is a piano or automation track of a project.
type Track struct {
	node       tree.NodeID
	kind       tree.Kind
	ID         string
	Name       string
	Colour     string
	Instrument string
	Controller int
	Notes      []Note
	Events     []AutomationEvent
	Clips      []Clip
}

// NewTrack returns an empty track of kind with a single clip at beat 0.
func NewTrack(kind tree.Kind, name string) *Track {
	return &Track{
		kind:  kind,
		ID:    uuid.NewString(),
		Name:  name,
		Clips: []Clip{{ID: "c0"}},
	}
}

// Kind returns the track kind.
func (t *Track) Kind() tree.Kind { return t.kind }

// Node returns the tree node of the track, or tree.None when detached.
func (t *Track) Node() tree.NodeID { return t.node }

// IsEmpty reports whether the sequence has no events.
func (t *Track) IsEmpty() bool {
	return len(t.Notes) == 0 && len(t.Events) == 0
}

// SequenceRange returns the first and last beat of the sequence. A note
// ends at beat+length; an automation event ends at its beat.
func (t *Track) SequenceRange() (first, last float32, ok bool) {
	if t.IsEmpty() {
		return 0, 0, false
	}
	first, last = math.MaxFloat32, -math.MaxFloat32
	for _, n := range t.Notes {
		first = min(first, n.Beat)
		last = max(last, n.Beat+n.Length)
	}
	for _, e := range t.Events {
		first = min(first, e.Beat)
		last = max(last, e.Beat)
	}
	return first, last, true
}

// PatternRange returns the smallest and largest clip offsets. A track
// without clips behaves as one clip at 0.
func (t *Track) PatternRange() (first, last float32) {
	if len(t.Clips) == 0 {
		return 0, 0
	}
	first, last = math.MaxFloat32, -math.MaxFloat32
	for _, c := range t.Clips {
		first = min(first, c.Beat)
		last = max(last, c.Beat)
	}
	return first, last
}

func trackType(kind tree.Kind) string {
	if kind == tree.KindAutomationTrack {
		return serialization.TypeAutomationTrack
	}
	return serialization.TypePianoTrack
}

func trackKind(typ string) (tree.Kind, bool) {
	switch typ {
	case serialization.TypePianoTrack:
		return tree.KindPianoTrack, true
	case serialization.TypeAutomationTrack:
		return tree.KindAutomationTrack, true
	}
	return 0, false
}

// Serialize returns the track as a pianoTrack or automationTrack node.
func (t *Track) Serialize() *serialization.Data {
	d := serialization.New(trackType(t.kind)).
		Set(serialization.KeyID, t.ID).
		Set(serialization.KeyName, t.Name)
	if t.Colour != "" {
		d.Set(serialization.KeyColour, t.Colour)
	}
	if t.Instrument != "" {
		d.Set(serialization.KeyInstrument, t.Instrument)
	}
	if t.kind == tree.KindAutomationTrack {
		d.Set(serialization.KeyController, t.Controller)
	}

	seq := serialization.New(serialization.TypeSequence)
	for _, n := range t.Notes {
		seq.AppendChild(serialization.New(serialization.TypeNote).
			Set(serialization.KeyID, n.ID).
			Set(serialization.KeyBeat, n.Beat).
			Set(serialization.KeyLength, n.Length).
			Set(serialization.KeyKey, n.Key).
			Set(serialization.KeyVelocity, n.Velocity))
	}
	for _, e := range t.Events {
		seq.AppendChild(serialization.New(serialization.TypeAutomationEvent).
			Set(serialization.KeyID, e.ID).
			Set(serialization.KeyBeat, e.Beat).
			Set(serialization.KeyValue, e.Value))
	}
	d.AppendChild(seq)

	pattern := serialization.New(serialization.TypePattern)
	for _, c := range t.Clips {
		pattern.AppendChild(serialization.New(serialization.TypeClip).
			Set(serialization.KeyID, c.ID).
			Set(serialization.KeyBeat, c.Beat))
	}
	d.AppendChild(pattern)
	return d
}

// deserializeTrack builds a track from a pianoTrack or automationTrack
// node. ok is false for any other node type.
func deserializeTrack(d *serialization.Data) (*Track, bool) {
	kind, ok := trackKind(d.Type)
	if !ok {
		return nil, false
	}
	t := &Track{
		kind:       kind,
		ID:         d.String(serialization.KeyID, ""),
		Name:       d.String(serialization.KeyName, ""),
		Colour:     d.String(serialization.KeyColour, ""),
		Instrument: d.String(serialization.KeyInstrument, ""),
		Controller: d.Int(serialization.KeyController, 0),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	if seq := d.ChildWithName(serialization.TypeSequence); seq != nil {
		for _, n := range seq.ChildrenWithType(serialization.TypeNote) {
			t.Notes = append(t.Notes, Note{
				ID:       n.String(serialization.KeyID, ""),
				Beat:     float32(n.Float(serialization.KeyBeat, 0)),
				Length:   float32(n.Float(serialization.KeyLength, 1)),
				Key:      n.Int(serialization.KeyKey, 60),
				Velocity: float32(n.Float(serialization.KeyVelocity, 0.5)),
			})
		}
		for _, e := range seq.ChildrenWithType(serialization.TypeAutomationEvent) {
			t.Events = append(t.Events, AutomationEvent{
				ID:    e.String(serialization.KeyID, ""),
				Beat:  float32(e.Float(serialization.KeyBeat, 0)),
				Value: float32(e.Float(serialization.KeyValue, 0)),
			})
		}
	}
	if pattern := d.ChildWithName(serialization.TypePattern); pattern != nil {
		for _, c := range pattern.ChildrenWithType(serialization.TypeClip) {
			t.Clips = append(t.Clips, Clip{
				ID:   c.String(serialization.KeyID, ""),
				Beat: float32(c.Float(serialization.KeyBeat, 0)),
			})
		}
	}
	t.sort()
	return t, true
}

func (t *Track) sort() {
	sort.SliceStable(t.Notes, func(i, j int) bool { return t.Notes[i].Beat < t.Notes[j].Beat })
	sort.SliceStable(t.Events, func(i, j int) bool { return t.Events[i].Beat < t.Events[j].Beat })
	sort.SliceStable(t.Clips, func(i, j int) bool { return t.Clips[i].Beat < t.Clips[j].Beat })
}
