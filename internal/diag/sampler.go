package diag

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// DefaultInterval is the period between records on each channel.
const DefaultInterval = 500 * time.Millisecond

// Clock provides wall-clock time for record timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sampler emits a record on every channel each interval while a track
// reference is present. It is safe for concurrent use.
type Sampler struct {
	mu       sync.Mutex
	sink     Sink
	sched    Scheduler
	clock    Clock
	interval time.Duration

	ref   track.Reference
	tasks []Task
}

// NewSampler creates an idle sampler. Nil sink, scheduler and clock fall back
// to SlogSink, TickerScheduler and the system clock; a non-positive interval
// uses DefaultInterval.
func NewSampler(sink Sink, sched Scheduler, clock Clock, interval time.Duration) *Sampler {
	if sink == nil {
		sink = SlogSink{}
	}
	if sched == nil {
		sched = TickerScheduler{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		sink:     sink,
		sched:    sched,
		clock:    clock,
		interval: interval,
	}
}

// SetTrack switches sampling to ref. Running tasks are canceled before new
// ones are scheduled. Passing the current reference does nothing.
func (s *Sampler) SetTrack(ref track.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == s.ref {
		return
	}
	s.ref = ref
	s.restartLocked()
}

// SetInterval changes the sampling period and restarts the running tasks.
func (s *Sampler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == s.interval {
		return
	}
	s.interval = d
	s.restartLocked()
}

// Interval returns the sampling period.
func (s *Sampler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Running reports whether sampling tasks are scheduled.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks) > 0
}

// Close cancels sampling. The sampler can be reused with SetTrack.
func (s *Sampler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.ref = nil
}

func (s *Sampler) restartLocked() {
	s.cancelLocked()
	if !track.IsPresent(s.ref) {
		return
	}
	ref := s.ref
	for _, ch := range Channels {
		s.tasks = append(s.tasks, s.sched.Every(s.interval, func() {
			s.sink.Emit(s.record(ch, ref))
		}))
	}
}

func (s *Sampler) cancelLocked() {
	for _, t := range s.tasks {
		t.Cancel()
	}
	s.tasks = nil
}

// record builds a snapshot of ref. It reads only immutable sampler fields so
// tasks never contend with SetTrack for the lock.
func (s *Sampler) record(ch Channel, ref track.Reference) Record {
	return Record{
		Event:     ch,
		Time:      s.clock.Now().UnixMilli(),
		TrackType: track.TypeOf(ref),
		TrackInfo: track.Extract(ref),
	}
}
