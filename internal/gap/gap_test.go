package gap

import (
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// at advances the clock to offset ms past the start.
func (c *fakeClock) at(start time.Time, ms int) {
	c.mu.Lock()
	c.now = start.Add(time.Duration(ms) * time.Millisecond)
	c.mu.Unlock()
}

func TestGapCorrectness(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{ID: "x", Source: em})

	clock.Advance(40 * time.Millisecond)
	em.Emit(track.EventMuted)
	clock.Advance(1234 * time.Millisecond)
	em.Emit(track.EventUnmuted)

	got, ok := tr.Gap()
	if !ok {
		t.Fatal("Gap() not measured after mute/unmute")
	}
	if got != 1234*time.Millisecond {
		t.Errorf("Gap() = %v, want 1.234s", got)
	}
}

func TestLatestMuteWins(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})

	em.Emit(track.EventMuted)
	clock.Advance(500 * time.Millisecond)
	em.Emit(track.EventMuted)
	clock.Advance(80 * time.Millisecond)
	em.Emit(track.EventUnmuted)

	if got, _ := tr.Gap(); got != 80*time.Millisecond {
		t.Errorf("Gap() = %v, want 80ms", got)
	}
}

func TestUnmuteWithoutMute(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})

	called := false
	tr.OnGap(func(time.Duration, track.Reference) { called = true })

	clock.Advance(time.Second)
	em.Emit(track.EventUnmuted)

	if _, ok := tr.Gap(); ok {
		t.Error("Gap() measured without a preceding mute")
	}
	if tr.Armed() {
		t.Error("tracker armed without a mute")
	}
	if called {
		t.Error("observer called without a measurement")
	}
	if got := tr.Label(); got != AwaitingLabel {
		t.Errorf("Label() = %q, want %q", got, AwaitingLabel)
	}
}

func TestRepeatedUnmuteReusesMute(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})

	em.Emit(track.EventMuted)
	clock.Advance(100 * time.Millisecond)
	em.Emit(track.EventUnmuted)
	clock.Advance(100 * time.Millisecond)
	em.Emit(track.EventUnmuted)

	if got, _ := tr.Gap(); got != 200*time.Millisecond {
		t.Errorf("Gap() = %v, want 200ms", got)
	}
	if !tr.Armed() {
		t.Error("tracker should stay armed after a measurement")
	}
}

func TestSwapReleasesPreviousTrack(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	x := track.NewEmitter()
	y := track.NewEmitter()
	tr := New(clock)

	var published []time.Duration
	tr.OnGap(func(d time.Duration, _ track.Reference) { published = append(published, d) })

	tr.SetTrack(&track.Bound{ID: "x", Source: x})
	if x.Len() != 2 {
		t.Fatalf("x subscriptions = %d, want 2", x.Len())
	}

	clock.at(start, 100)
	x.Emit(track.EventMuted)
	clock.at(start, 350)
	x.Emit(track.EventUnmuted)

	if got, ok := tr.Gap(); !ok || got != 250*time.Millisecond {
		t.Fatalf("Gap() = %v, %v; want 250ms, true", got, ok)
	}

	clock.at(start, 400)
	tr.SetTrack(&track.Bound{ID: "y", Source: y})
	if x.Len() != 0 {
		t.Errorf("x subscriptions after swap = %d, want 0", x.Len())
	}
	if y.Len() != 2 {
		t.Errorf("y subscriptions after swap = %d, want 2", y.Len())
	}

	clock.at(start, 900)
	x.Emit(track.EventMuted)
	x.Emit(track.EventUnmuted)

	if len(published) != 1 {
		t.Errorf("published %d gaps, want 1: %v", len(published), published)
	}
	if got, _ := tr.Gap(); got != 250*time.Millisecond {
		t.Errorf("Gap() after swap = %v, want 250ms", got)
	}
	if got, want := tr.Label(), "gap since last input end: 250.0 ms"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}

func TestObserverReceivesMeasuredReference(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)

	var got []track.Reference
	tr.OnGap(func(_ time.Duration, ref track.Reference) { got = append(got, ref) })

	x := &track.Bound{ID: "x", Source: em}
	tr.SetTrack(x)
	em.Emit(track.EventMuted)
	clock.Advance(40 * time.Millisecond)
	em.Emit(track.EventUnmuted)

	if len(got) != 1 || got[0] != x {
		t.Errorf("observer references = %v, want [%p]", got, x)
	}
}

func TestStaleHandlerIgnored(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})
	em.Emit(track.EventMuted)

	// Simulate a delivery that was already in flight when the track changed.
	stale := tr.gen
	tr.SetTrack(&track.Placeholder{})
	clock.Advance(time.Second)
	tr.handleUnmuted(stale)

	if _, ok := tr.Gap(); ok {
		t.Error("stale unmute produced a measurement")
	}
}

func TestPlaceholderKeepsLastGap(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})
	em.Emit(track.EventMuted)
	clock.Advance(75 * time.Millisecond)
	em.Emit(track.EventUnmuted)

	for _, ref := range []track.Reference{&track.Placeholder{}, &track.Bound{}, nil} {
		tr.SetTrack(ref)
		if tr.Bound() {
			t.Errorf("tracker bound to %T", ref)
		}
		if got, ok := tr.Gap(); !ok || got != 75*time.Millisecond {
			t.Errorf("Gap() after %T = %v, %v; want 75ms, true", ref, got, ok)
		}
	}
	if em.Len() != 0 {
		t.Errorf("subscriptions left = %d, want 0", em.Len())
	}
}

func TestSameReferenceNoRebind(t *testing.T) {
	em := track.NewEmitter()
	tr := New(newFakeClock())
	ref := &track.Bound{Source: em}
	tr.SetTrack(ref)
	tr.SetTrack(ref)
	if em.Len() != 2 {
		t.Errorf("subscriptions = %d, want 2", em.Len())
	}

	// A distinct reference to the same source is a new binding.
	tr.SetTrack(&track.Bound{Source: em})
	if em.Len() != 2 {
		t.Errorf("subscriptions after rebind = %d, want 2", em.Len())
	}
}

func TestClose(t *testing.T) {
	clock := newFakeClock()
	em := track.NewEmitter()
	tr := New(clock)
	tr.SetTrack(&track.Bound{Source: em})
	tr.Close()
	tr.Close()

	if em.Len() != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", em.Len())
	}
	em.Emit(track.EventMuted)
	clock.Advance(time.Second)
	em.Emit(track.EventUnmuted)
	if _, ok := tr.Gap(); ok {
		t.Error("measurement after Close")
	}
}

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		d    time.Duration
		ok   bool
		want string
	}{
		{0, false, AwaitingLabel},
		{0, true, "gap since last input end: 0.0 ms"},
		{1500 * time.Microsecond, true, "gap since last input end: 1.5 ms"},
		{250 * time.Millisecond, true, "gap since last input end: 250.0 ms"},
	}
	for _, tt := range tests {
		if got := FormatLabel(tt.d, tt.ok); got != tt.want {
			t.Errorf("FormatLabel(%v, %v) = %q, want %q", tt.d, tt.ok, got, tt.want)
		}
	}
}
