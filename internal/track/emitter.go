package track

import (
	"slices"
	"sync"
)

type registration struct {
	id uint64
	h  Handler
}

// Emitter is an in-process Source. Handlers run synchronously on the
// goroutine calling Emit, in subscription order.
// It is safe for concurrent use.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Event][]registration
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[Event][]registration),
	}
}

// Subscribe registers h for event.
func (e *Emitter) Subscribe(event Event, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[event] = append(e.handlers[event], registration{id: e.nextID, h: h})
	return Subscription{id: e.nextID, event: event}
}

// Unsubscribe releases sub. Releasing an unknown or already released
// subscription does nothing.
func (e *Emitter) Unsubscribe(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.handlers[sub.event]
	i := slices.IndexFunc(regs, func(r registration) bool { return r.id == sub.id })
	if i < 0 {
		return
	}
	e.handlers[sub.event] = slices.Delete(regs, i, i+1)
}

// Emit fires event. The handler list is copied before dispatch so handlers may
// subscribe or unsubscribe.
func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	regs := slices.Clone(e.handlers[event])
	e.mu.Unlock()

	for _, r := range regs {
		r.h()
	}
}

// Len returns the number of live subscriptions across all events.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, regs := range e.handlers {
		n += len(regs)
	}
	return n
}
