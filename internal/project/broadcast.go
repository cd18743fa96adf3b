package project

import (
	"context"
	"math"

	"github.com/fyrsmithlabs/scorekeep/internal/events"
)

// DefaultNumBeats is the shortest project range.
const DefaultNumBeats = 16

// BeatRange returns the full range of the project in beats.
//
// Each track spans from its first event plus its first clip offset to its
// last event plus its last clip offset. Empty tracks do not count. A
// project without events spans 0..DefaultNumBeats, and shorter ranges are
// widened to DefaultNumBeats.
func (p *Project) BeatRange() (first, last float32) {
	first, last = math.MaxFloat32, -math.MaxFloat32
	for _, t := range p.Tracks() {
		seqFirst, seqLast, ok := t.SequenceRange()
		if !ok {
			continue
		}
		patFirst, patLast := t.PatternRange()
		first = min(first, seqFirst+patFirst)
		last = max(last, seqLast+patLast)
	}

	if first == math.MaxFloat32 {
		first, last = 0, 0
	} else if first > last {
		first = last - DefaultNumBeats
	}
	if last-first < DefaultNumBeats {
		last = first + DefaultNumBeats
	}
	return first, last
}

// BroadcastReloadProjectContent tells observers the tracks were replaced.
func (p *Project) BroadcastReloadProjectContent(ctx context.Context) {
	p.bus.Publish(ctx, events.Event{
		Kind:      events.ReloadProjectContent,
		ProjectID: p.id,
		Name:      p.name,
		Tracks:    len(p.tracks),
	})
}

// BroadcastChangeProjectBeatRange recomputes the full range and notifies
// observers when it differs from the last announced one. The current range
// is returned either way.
func (p *Project) BroadcastChangeProjectBeatRange(ctx context.Context) (first, last float32) {
	first, last = p.BeatRange()
	if p.rangeKnown && first == p.firstBeatCache && last == p.lastBeatCache {
		return first, last
	}
	p.rangeKnown = true
	p.firstBeatCache, p.lastBeatCache = first, last
	p.bus.Publish(ctx, events.Event{
		Kind:      events.ChangeProjectBeatRange,
		ProjectID: p.id,
		FirstBeat: first,
		LastBeat:  last,
	})
	return first, last
}

// BroadcastChangeViewBeatRange asks observers to show first..last.
func (p *Project) BroadcastChangeViewBeatRange(ctx context.Context, first, last float32) {
	p.bus.Publish(ctx, events.Event{
		Kind:      events.ChangeViewBeatRange,
		ProjectID: p.id,
		FirstBeat: first,
		LastBeat:  last,
	})
}
