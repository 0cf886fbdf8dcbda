package server

import (
	"sync"

	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
)

// listenerBuffer holds about five seconds of records at the default cadence.
const listenerBuffer = 20

// Hub fans out diagnostic records to connected WebSocket clients.
type Hub struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives diagnostic records from the hub.
type Listener struct {
	C    chan diag.Record
	done chan struct{}
}

// Done is closed when the listener has been unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan diag.Record, listenerBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it twice is
// a no-op.
func (h *Hub) Unsubscribe(l *Listener) {
	h.mu.Lock()
	_, ok := h.listeners[l]
	delete(h.listeners, l)
	h.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Emit implements [diag.Sink]. Slow listeners get records dropped rather than
// blocking the sampler.
func (h *Hub) Emit(r diag.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		select {
		case l.C <- r:
		default:
		}
	}
}

var _ diag.Sink = (*Hub)(nil)
