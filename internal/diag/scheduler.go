package diag

import (
	"log/slog"
	"sync"
	"time"
)

// Task is a handle to a periodic job.
type Task interface {
	// Cancel stops the job. When Cancel returns the job will not run again.
	// It must not be called from inside the job itself.
	Cancel()
}

// Scheduler runs fn every d until the returned task is canceled.
type Scheduler interface {
	Every(d time.Duration, fn func()) Task
}

// TickerScheduler runs each task on its own goroutine driven by a time.Ticker.
type TickerScheduler struct{}

// Every starts fn on a ticker with period d.
func (TickerScheduler) Every(d time.Duration, fn func()) Task {
	t := &tickerTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(d, fn)
	return t
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (t *tickerTask) run(d time.Duration, fn func()) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in periodic task", "panic", r)
		}
	}()

	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			// Cancel may have raced with the tick.
			select {
			case <-t.stop:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// ManualScheduler runs tasks only when Advance is called. It drives the
// sampler deterministically in tests and simulations.
// It is safe for concurrent use.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	s        *ManualScheduler
	interval time.Duration
	next     time.Duration
	fn       func()
	canceled bool
}

// NewManualScheduler creates a scheduler whose clock starts at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every schedules fn to run every d of manual time, starting d from now.
func (m *ManualScheduler) Every(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{s: m, interval: d, next: m.now + d, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves the clock forward by d, running every task that falls due in
// firing order.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due *manualTask
		for _, t := range m.tasks {
			if t.canceled || t.next > target {
				continue
			}
			if due == nil || t.next < due.next {
				due = t
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next += due.interval
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

// Active returns the number of tasks that have not been canceled.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Now returns the elapsed manual time.
func (m *ManualScheduler) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (t *manualTask) Cancel() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.canceled = true
}
