// Package tile composes gap tracking and diagnostic sampling around one
// mutable track reference.
package tile

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/gap"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// Options configures a Tile. Zero values select production defaults.
type Options struct {
	Sink      diag.Sink
	Scheduler diag.Scheduler
	Clock     gap.Clock
	Interval  time.Duration
	// OnChange is called after the reference changes or a new gap is measured.
	OnChange func()
	// OnTrack is called with every new reference, in the order the references
	// were applied. It must not call SetTrack.
	OnTrack func(track.Reference)
	// OnGap is called with every measured gap and the track it was measured on.
	OnGap func(time.Duration, track.Info)
}

// Snapshot is the state shown on the UI surface.
type Snapshot struct {
	TrackType string     `json:"track_type"`
	TrackInfo track.Info `json:"track_info"`
	GapMs     *float64   `json:"gap_ms,omitempty"`
	Label     string     `json:"label"`
	Armed     bool       `json:"armed"`
	Sampling  bool       `json:"sampling"`
	Interval  int64      `json:"interval_ms"`
}

// Tile holds the current track reference and keeps its tracker and sampler
// bound to it. It is safe for concurrent use.
type Tile struct {
	// swapMu serializes SetTrack including its callbacks.
	swapMu sync.Mutex

	mu      sync.Mutex
	ref     track.Reference
	tracker *gap.Tracker
	sampler *diag.Sampler
	opts    Options
}

// New creates a tile with no reference.
func New(opts Options) *Tile {
	t := &Tile{
		tracker: gap.New(opts.Clock),
		sampler: diag.NewSampler(opts.Sink, opts.Scheduler, clockAdapter{opts.Clock}, opts.Interval),
		opts:    opts,
	}
	t.tracker.OnGap(t.handleGap)
	return t
}

// SetTrack replaces the reference. Both the tracker and the sampler tear down
// everything armed for the previous reference before arming the new one.
func (t *Tile) SetTrack(ref track.Reference) {
	t.swapMu.Lock()
	defer t.swapMu.Unlock()

	t.mu.Lock()
	if ref == t.ref {
		t.mu.Unlock()
		return
	}
	t.ref = ref
	t.tracker.SetTrack(ref)
	t.sampler.SetTrack(ref)
	t.mu.Unlock()

	if t.opts.OnTrack != nil {
		t.opts.OnTrack(ref)
	}
	t.notify()
}

// Track returns the current reference.
func (t *Tile) Track() track.Reference {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref
}

// SetInterval changes the diagnostic sampling period.
func (t *Tile) SetInterval(d time.Duration) {
	t.sampler.SetInterval(d)
	t.notify()
}

// Label returns the gap text.
func (t *Tile) Label() string {
	return t.tracker.Label()
}

// Snapshot returns the current UI state.
func (t *Tile) Snapshot() Snapshot {
	ref := t.Track()
	s := Snapshot{
		TrackType: track.TypeOf(ref),
		TrackInfo: track.Extract(ref),
		Label:     t.tracker.Label(),
		Armed:     t.tracker.Armed(),
		Sampling:  t.sampler.Running(),
		Interval:  t.sampler.Interval().Milliseconds(),
	}
	if d, ok := t.tracker.Gap(); ok {
		ms := gap.Milliseconds(d)
		s.GapMs = &ms
	}
	return s
}

// Close releases all subscriptions and timers.
func (t *Tile) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracker.Close()
	t.sampler.Close()
	t.ref = nil
}

func (t *Tile) handleGap(d time.Duration, ref track.Reference) {
	if t.opts.OnGap != nil {
		t.opts.OnGap(d, track.Extract(ref))
	}
	t.notify()
}

func (t *Tile) notify() {
	if t.opts.OnChange != nil {
		t.opts.OnChange()
	}
}

// clockAdapter lets the sampler share the tracker's clock.
type clockAdapter struct {
	c gap.Clock
}

func (a clockAdapter) Now() time.Time {
	if a.c == nil {
		return time.Now()
	}
	return a.c.Now()
}
