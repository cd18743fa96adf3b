package tree

// Kind tags what a node represents in the workspace tree.
type Kind uint8

const (
	KindRoot Kind = iota + 1
	KindProject
	KindVersionControl
	KindPatternEditor
	KindPianoTrack
	KindAutomationTrack
	KindSettings
	KindInstruments
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindProject:
		return "project"
	case KindVersionControl:
		return "versionControl"
	case KindPatternEditor:
		return "patternEditor"
	case KindPianoTrack:
		return "pianoTrack"
	case KindAutomationTrack:
		return "automationTrack"
	case KindSettings:
		return "settings"
	case KindInstruments:
		return "instruments"
	default:
		return "unknown"
	}
}

// Capability is a bit set describing what a kind of node can do.
// Callers query capabilities instead of switching on concrete kinds.
type Capability uint8

const (
	// CapTrack nodes hold a sequence of events and a pattern of clips.
	CapTrack Capability = 1 << iota
	// CapEditableTrack nodes are the default view target of a project.
	CapEditableTrack
	// CapEssential nodes are mandatory children of every project.
	CapEssential
	// CapDocument nodes own a persisted document.
	CapDocument
	// CapAuxiliary nodes are workspace chrome, not user content.
	CapAuxiliary
)

var kindCapabilities = map[Kind]Capability{
	KindRoot:            0,
	KindProject:         CapDocument,
	KindVersionControl:  CapEssential,
	KindPatternEditor:   CapEssential,
	KindPianoTrack:      CapTrack | CapEditableTrack,
	KindAutomationTrack: CapTrack,
	KindSettings:        CapAuxiliary,
	KindInstruments:     CapAuxiliary,
}

// Is reports whether every capability bit in c is set for k.
func (k Kind) Is(c Capability) bool {
	return kindCapabilities[k]&c == c
}

// KindFromString is the inverse of Kind.String. It returns false for
// unknown names.
func KindFromString(s string) (Kind, bool) {
	for k := range kindCapabilities {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
