package track

import "testing"

func TestEmitterDispatchOrder(t *testing.T) {
	em := NewEmitter()
	var got []string
	em.Subscribe(EventMuted, func() { got = append(got, "a") })
	em.Subscribe(EventMuted, func() { got = append(got, "b") })
	em.Subscribe(EventUnmuted, func() { got = append(got, "u") })

	em.Emit(EventMuted)
	em.Emit(EventUnmuted)

	want := []string{"a", "b", "u"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	em := NewEmitter()
	calls := 0
	sub := em.Subscribe(EventMuted, func() { calls++ })
	if em.Len() != 1 {
		t.Fatalf("Len = %d, want 1", em.Len())
	}

	em.Unsubscribe(sub)
	em.Unsubscribe(sub)
	em.Unsubscribe(Subscription{})
	if em.Len() != 0 {
		t.Errorf("Len after unsubscribe = %d, want 0", em.Len())
	}

	em.Emit(EventMuted)
	if calls != 0 {
		t.Errorf("handler called %d times after unsubscribe", calls)
	}
}

func TestEmitterUnsubscribeDuringEmit(t *testing.T) {
	em := NewEmitter()
	calls := 0
	var sub Subscription
	sub = em.Subscribe(EventUnmuted, func() {
		calls++
		em.Unsubscribe(sub)
	})

	em.Emit(EventUnmuted)
	em.Emit(EventUnmuted)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
