// Package track models references to live audio tracks and the mute/unmute
// events they emit.
package track

// Event is a track state transition signal.
type Event string

// Track events.
const (
	EventMuted   Event = "muted"
	EventUnmuted Event = "unmuted"
)

// Handler is called when a subscribed event fires.
type Handler func()

// Subscription is a handle to a registered handler. It must be passed back to
// Unsubscribe to release the handler.
type Subscription struct {
	id    uint64
	event Event
}

// Event returns the event the subscription was registered for.
func (s Subscription) Event() Event {
	return s.event
}

// Source is the subscription capability of an underlying track.
type Source interface {
	Subscribe(event Event, h Handler) Subscription
	Unsubscribe(sub Subscription)
}

// Reference is a handle to a bound track or a placeholder.
// A nil Reference means no reference is present.
// Two references are the same only if they are the same pointer.
type Reference interface {
	trackID() string
	trackLabel() string
}

// Bound is a reference that carries an underlying track.
type Bound struct {
	ID     string
	Label  string
	Source Source // nil if the track cannot be subscribed to
}

func (b *Bound) trackID() string    { return b.ID }
func (b *Bound) trackLabel() string { return b.Label }

// Placeholder is a reference with no underlying track.
type Placeholder struct {
	ID    string
	Label string
}

func (p *Placeholder) trackID() string    { return p.ID }
func (p *Placeholder) trackLabel() string { return p.Label }

// SourceOf returns the subscription capability of ref, if it has one.
func SourceOf(ref Reference) (Source, bool) {
	b, ok := ref.(*Bound)
	if !ok || b == nil || b.Source == nil {
		return nil, false
	}
	return b.Source, true
}

// IsPresent reports whether ref is a non-nil reference.
func IsPresent(ref Reference) bool {
	switch r := ref.(type) {
	case *Bound:
		return r != nil
	case *Placeholder:
		return r != nil
	default:
		return false
	}
}

// TypeOf returns the runtime type name of ref as reported in diagnostics.
func TypeOf(ref Reference) string {
	if !IsPresent(ref) {
		return "undefined"
	}
	switch ref.(type) {
	case *Bound:
		return "bound"
	default:
		return "placeholder"
	}
}
