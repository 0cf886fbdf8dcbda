// Package gap measures the time between a track going mute and becoming
// unmuted again.
package gap

import (
	"fmt"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// AwaitingLabel is shown until the first gap has been measured.
const AwaitingLabel = "awaiting measurement"

// Clock provides the current time. Readings must carry a monotonic component.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Tracker follows the mute/unmute events of the currently bound track and
// publishes the elapsed time between them. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	clock Clock

	ref    track.Reference
	source track.Source
	subs   []track.Subscription
	gen    uint64 // bumped on every rebind; stale handlers compare against it

	lastMute time.Time
	armed    bool

	gap      time.Duration
	measured bool

	observers []Observer
}

// Observer receives a newly published gap together with the reference whose
// events produced it.
type Observer func(d time.Duration, ref track.Reference)

// New creates an unbound tracker. A nil clock uses the system clock.
func New(clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tracker{clock: clock}
}

// OnGap registers fn to be called with every newly published gap.
// fn runs after the tracker lock is released.
func (t *Tracker) OnGap(fn Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// SetTrack rebinds the tracker to ref. Handlers on the previously bound track
// are released before anything is registered on the new one. Passing the
// reference that is already bound does nothing.
func (t *Tracker) SetTrack(ref track.Reference) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ref == t.ref {
		return
	}

	t.releaseLocked()
	t.ref = ref
	t.gen++

	src, ok := track.SourceOf(ref)
	if !ok {
		return
	}

	gen := t.gen
	t.source = src
	t.subs = []track.Subscription{
		src.Subscribe(track.EventMuted, func() { t.handleMuted(gen) }),
		src.Subscribe(track.EventUnmuted, func() { t.handleUnmuted(gen) }),
	}
}

// Close releases all handlers. The last measured gap is kept.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
	t.ref = nil
	t.gen++
}

// releaseLocked unsubscribes from the bound source. Caller must hold t.mu.
func (t *Tracker) releaseLocked() {
	if t.source == nil {
		return
	}
	for _, sub := range t.subs {
		t.source.Unsubscribe(sub)
	}
	t.source = nil
	t.subs = nil
}

func (t *Tracker) handleMuted(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.lastMute = t.clock.Now()
	t.armed = true
}

func (t *Tracker) handleUnmuted(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	// The mute timestamp stays set, so a repeated unmute measures from the
	// same mute.
	d := t.clock.Now().Sub(t.lastMute)
	t.gap = d
	t.measured = true
	ref := t.ref
	observers := t.observers
	t.mu.Unlock()

	for _, fn := range observers {
		fn(d, ref)
	}
}

// Gap returns the most recent measurement and whether one exists.
func (t *Tracker) Gap() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gap, t.measured
}

// Armed reports whether a mute has been seen that an unmute can measure from.
func (t *Tracker) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Bound reports whether the tracker currently holds subscriptions.
func (t *Tracker) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source != nil
}

// Label returns the text shown next to the level bars.
func (t *Tracker) Label() string {
	d, ok := t.Gap()
	return FormatLabel(d, ok)
}

// FormatLabel renders a gap for display with one decimal of milliseconds.
func FormatLabel(d time.Duration, ok bool) string {
	if !ok {
		return AwaitingLabel
	}
	return fmt.Sprintf("gap since last input end: %.1f ms", Milliseconds(d))
}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
