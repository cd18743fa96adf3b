package serialization

// Node types.
const (
	TypeProject         = "project"
	TypeMetadata        = "projectInfo"
	TypeTimeline        = "projectTimeline"
	TypeVersionControl  = "versionControl"
	TypePatternEditor   = "patternEditor"
	TypePianoTrack      = "pianoTrack"
	TypeAutomationTrack = "automationTrack"
	TypeSequence        = "sequence"
	TypePattern         = "pattern"
	TypeClip            = "clip"
	TypeNote            = "note"
	TypeAutomationEvent = "event"
	TypeAnnotations     = "annotations"
	TypeKeySignatures   = "keySignatures"
	TypeTimeSignatures  = "timeSignatures"
	TypeAnnotation      = "annotation"
	TypeKeySignature    = "keySignature"
	TypeTimeSignature   = "timeSignature"
	TypeSession         = "session"
)

// Property keys.
const (
	KeyID           = "id"
	KeyName         = "name"
	KeyAuthor       = "author"
	KeyDescription  = "description"
	KeyLicense      = "license"
	KeyTemperament  = "temperament"
	KeyCreatedAt    = "createdAt"
	KeyColour       = "colour"
	KeyInstrument   = "instrument"
	KeyController   = "controller"
	KeyBeat         = "beat"
	KeyLength       = "length"
	KeyKey          = "key"
	KeyVelocity     = "velocity"
	KeyValue        = "value"
	KeyText         = "text"
	KeyRootKey      = "rootKey"
	KeyScale        = "scale"
	KeyNumerator    = "numerator"
	KeyDenominator  = "denominator"
	KeyZoom         = "zoom"
	KeySelectedClip = "selectedClip"
)
