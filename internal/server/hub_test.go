package server

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

func TestHubSubscribeUnsubscribe(t *testing.T) {
	h := NewHub()
	l1 := h.Subscribe()
	l2 := h.Subscribe()
	if h.ListenerCount() != 2 {
		t.Fatalf("ListenerCount = %d, want 2", h.ListenerCount())
	}

	h.Unsubscribe(l1)
	h.Unsubscribe(l1)
	if h.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", h.ListenerCount())
	}
	select {
	case <-l1.Done():
	default:
		t.Error("unsubscribed listener not signalled")
	}

	h.Unsubscribe(l2)
	if h.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", h.ListenerCount())
	}
}

func TestHubDelivers(t *testing.T) {
	h := NewHub()
	listeners := []*Listener{h.Subscribe(), h.Subscribe()}

	rec := diag.Record{
		Event:     diag.ChannelInput,
		Time:      1700000000000,
		TrackType: "bound",
		TrackInfo: track.Info{ID: "a", Label: "mic"},
	}
	h.Emit(rec)

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("listener %d mismatch (-want +got):\n%s", i, diff)
			}
		default:
			t.Errorf("listener %d received nothing", i)
		}
	}
}

func TestHubDropsForSlowListener(t *testing.T) {
	h := NewHub()
	l := h.Subscribe()

	for range listenerBuffer + 5 {
		h.Emit(diag.Record{Event: diag.ChannelOutput})
	}
	if len(l.C) != listenerBuffer {
		t.Errorf("buffered = %d, want %d", len(l.C), listenerBuffer)
	}
}
