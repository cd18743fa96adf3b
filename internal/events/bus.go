// Package events carries project notifications from the workspace core to
// observers.
//
// Notifications are fire-and-forget: Publish calls every observer in
// subscription order and returns nothing. Observers must not block.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind names a notification.
type Kind string

const (
	// ReloadProjectContent is sent after a project's tracks were replaced.
	ReloadProjectContent Kind = "reload_project_content"
	// ChangeProjectBeatRange is sent when a project's full beat range moved.
	ChangeProjectBeatRange Kind = "change_project_beat_range"
	// ChangeViewBeatRange is sent when the visible beat range should move.
	ChangeViewBeatRange Kind = "change_view_beat_range"
	// ChangeProjectInfo is sent after project metadata changed.
	ChangeProjectInfo Kind = "change_project_info"
	// ProjectOpened is sent after a project became live in the workspace.
	ProjectOpened Kind = "project_opened"
	// ProjectClosed is sent after a project was removed from the workspace.
	ProjectClosed Kind = "project_closed"
)

// Event is one notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name,omitempty"`
	FirstBeat float32   `json:"first_beat"`
	LastBeat  float32   `json:"last_beat"`
	Tracks    int       `json:"tracks,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives notifications.
type Observer interface {
	Notify(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Bus fans notifications out to observers. It is not safe for concurrent
// use; the workspace drives it from its single control thread.
type Bus struct {
	observers []*subscription
	logger    *zap.Logger
	now       func() time.Time
}

type subscription struct {
	observer Observer
}

// NewBus returns an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, now: time.Now}
}

// Subscribe registers o and returns a function that removes it.
func (b *Bus) Subscribe(o Observer) func() {
	sub := &subscription{observer: o}
	b.observers = append(b.observers, sub)
	return func() {
		for i, s := range b.observers {
			if s == sub {
				b.observers = append(b.observers[:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of observers.
func (b *Bus) Len() int {
	return len(b.observers)
}

// Publish delivers e to every observer. A zero timestamp is filled in.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.logger.Debug("project notification",
		zap.String("kind", string(e.Kind)),
		zap.String("project_id", e.ProjectID),
	)
	observers := make([]*subscription, len(b.observers))
	copy(observers, b.observers)
	for _, s := range observers {
		s.observer.Notify(ctx, e)
	}
}

// Recorder is an Observer that keeps every event it sees.
type Recorder struct {
	Events []Event
}

// Notify records e.
func (r *Recorder) Notify(_ context.Context, e Event) {
	r.Events = append(r.Events, e)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many recorded events have kind k.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}
