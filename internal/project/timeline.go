package project

import (
	"github.com/fyrsmithlabs/scorekeep/internal/serialization"
)

// Annotation marks a named region of the arrangement.
type Annotation struct {
	ID     string
	Beat   float32
	Length float32
	Text   string
	Colour string
}

// KeySignature changes the key from Beat on.
type KeySignature struct {
	ID      string
	Beat    float32
	RootKey int
	Scale   string
}

// TimeSignature changes the meter from Beat on.
type TimeSignature struct {
	ID          string
	Beat        float32
	Numerator   int
	Denominator int
}

// Timeline holds the project-wide markers.
type Timeline struct {
	Annotations    []Annotation
	KeySignatures  []KeySignature
	TimeSignatures []TimeSignature
}

// Reset drops every marker.
func (t *Timeline) Reset() {
	t.Annotations = nil
	t.KeySignatures = nil
	t.TimeSignatures = nil
}

// Len returns the number of markers.
func (t *Timeline) Len() int {
	return len(t.Annotations) + len(t.KeySignatures) + len(t.TimeSignatures)
}

// Serialize returns the timeline as a projectTimeline node.
func (t *Timeline) Serialize() *serialization.Data {
	d := serialization.New(serialization.TypeTimeline)

	annotations := serialization.New(serialization.TypeAnnotations)
	for _, a := range t.Annotations {
		n := serialization.New(serialization.TypeAnnotation).
			Set(serialization.KeyID, a.ID).
			Set(serialization.KeyBeat, a.Beat).
			Set(serialization.KeyLength, a.Length).
			Set(serialization.KeyText, a.Text)
		if a.Colour != "" {
			n.Set(serialization.KeyColour, a.Colour)
		}
		annotations.AppendChild(n)
	}

	keys := serialization.New(serialization.TypeKeySignatures)
	for _, k := range t.KeySignatures {
		keys.AppendChild(serialization.New(serialization.TypeKeySignature).
			Set(serialization.KeyID, k.ID).
			Set(serialization.KeyBeat, k.Beat).
			Set(serialization.KeyRootKey, k.RootKey).
			Set(serialization.KeyScale, k.Scale))
	}

	meters := serialization.New(serialization.TypeTimeSignatures)
	for _, m := range t.TimeSignatures {
		meters.AppendChild(serialization.New(serialization.TypeTimeSignature).
			Set(serialization.KeyID, m.ID).
			Set(serialization.KeyBeat, m.Beat).
			Set(serialization.KeyNumerator, m.Numerator).
			Set(serialization.KeyDenominator, m.Denominator))
	}

	return d.AppendChild(annotations).AppendChild(keys).AppendChild(meters)
}

// Deserialize replaces the timeline with the content of a projectTimeline
// node. Nodes of other types reset the timeline.
func (t *Timeline) Deserialize(d *serialization.Data) {
	t.Reset()
	if !d.HasType(serialization.TypeTimeline) {
		return
	}

	for _, n := range d.ChildWithName(serialization.TypeAnnotations).ChildrenWithType(serialization.TypeAnnotation) {
		t.Annotations = append(t.Annotations, Annotation{
			ID:     n.String(serialization.KeyID, ""),
			Beat:   float32(n.Float(serialization.KeyBeat, 0)),
			Length: float32(n.Float(serialization.KeyLength, 0)),
			Text:   n.String(serialization.KeyText, ""),
			Colour: n.String(serialization.KeyColour, ""),
		})
	}
	for _, n := range d.ChildWithName(serialization.TypeKeySignatures).ChildrenWithType(serialization.TypeKeySignature) {
		t.KeySignatures = append(t.KeySignatures, KeySignature{
			ID:      n.String(serialization.KeyID, ""),
			Beat:    float32(n.Float(serialization.KeyBeat, 0)),
			RootKey: n.Int(serialization.KeyRootKey, 0),
			Scale:   n.String(serialization.KeyScale, "major"),
		})
	}
	for _, n := range d.ChildWithName(serialization.TypeTimeSignatures).ChildrenWithType(serialization.TypeTimeSignature) {
		t.TimeSignatures = append(t.TimeSignatures, TimeSignature{
			ID:          n.String(serialization.KeyID, ""),
			Beat:        float32(n.Float(serialization.KeyBeat, 0)),
			Numerator:   n.Int(serialization.KeyNumerator, 4),
			Denominator: n.Int(serialization.KeyDenominator, 4),
		})
	}
}
