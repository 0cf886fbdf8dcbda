package diag

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
}

func (r *recordingSink) Emit(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingSink) count(ch Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Event == ch {
			n++
		}
	}
	return n
}

func (r *recordingSink) all() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var epoch = time.UnixMilli(1_700_000_000_000)

func TestSamplerCadence(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, DefaultInterval)

	s.SetTrack(&track.Bound{ID: "mic"})
	sched.Advance(2000 * time.Millisecond)

	for _, ch := range Channels {
		if got := sink.count(ch); got < 3 || got > 5 {
			t.Errorf("%s emitted %d records in 2s, want 4±1", ch, got)
		}
	}
	if got := sink.count(ChannelInput); got != 4 {
		t.Errorf("%s emitted %d records, want exactly 4 with a manual clock", ChannelInput, got)
	}
}

func TestSamplerRecordShape(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, 0)

	s.SetTrack(&track.Placeholder{Label: "waiting"})
	sched.Advance(DefaultInterval)

	want := []Record{
		{Event: ChannelInput, Time: epoch.UnixMilli(), TrackType: "placeholder", TrackInfo: track.Info{ID: "unknown", Label: "waiting"}},
		{Event: ChannelOutput, Time: epoch.UnixMilli(), TrackType: "placeholder", TrackInfo: track.Info{ID: "unknown", Label: "waiting"}},
	}
	if diff := cmp.Diff(want, sink.all()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSamplerIdleWithoutReference(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, DefaultInterval)

	s.SetTrack(nil)
	sched.Advance(5 * time.Second)

	if n := len(sink.all()); n != 0 {
		t.Errorf("emitted %d records without a reference", n)
	}
	if s.Running() {
		t.Error("Running() = true without a reference")
	}
}

func TestSamplerSwapCancelsBeforeRescheduling(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, DefaultInterval)

	s.SetTrack(&track.Bound{ID: "a"})
	s.SetTrack(&track.Bound{ID: "b"})
	if got := sched.Active(); got != 2 {
		t.Fatalf("active tasks after swap = %d, want 2", got)
	}

	sched.Advance(DefaultInterval)
	for _, rec := range sink.all() {
		if rec.TrackInfo.ID != "b" {
			t.Errorf("record for stale track %q", rec.TrackInfo.ID)
		}
	}
	if n := len(sink.all()); n != 2 {
		t.Errorf("emitted %d records, want 2", n)
	}
}

func TestSamplerSameReference(t *testing.T) {
	sched := NewManualScheduler()
	s := NewSampler(&recordingSink{}, sched, fixedClock{epoch}, DefaultInterval)
	ref := &track.Placeholder{}
	s.SetTrack(ref)
	s.SetTrack(ref)
	if got := sched.Active(); got != 2 {
		t.Errorf("active tasks = %d, want 2", got)
	}
}

func TestSamplerClose(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, DefaultInterval)
	s.SetTrack(&track.Bound{})
	s.Close()

	sched.Advance(time.Second)
	if n := len(sink.all()); n != 0 {
		t.Errorf("emitted %d records after Close", n)
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("active tasks after Close = %d, want 0", got)
	}
}

func TestSamplerSetInterval(t *testing.T) {
	sink := &recordingSink{}
	sched := NewManualScheduler()
	s := NewSampler(sink, sched, fixedClock{epoch}, DefaultInterval)
	s.SetTrack(&track.Bound{})
	s.SetInterval(100 * time.Millisecond)

	if got := sched.Active(); got != 2 {
		t.Fatalf("active tasks = %d, want 2", got)
	}
	sched.Advance(time.Second)
	if got := sink.count(ChannelOutput); got != 10 {
		t.Errorf("%s emitted %d records, want 10", ChannelOutput, got)
	}
}

func TestTickerSchedulerCancel(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	task := TickerScheduler{}.Every(5*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	time.Sleep(40 * time.Millisecond)
	task.Cancel()
	task.Cancel()

	mu.Lock()
	after := calls
	mu.Unlock()
	if after == 0 {
		t.Fatal("task never ran")
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != after {
		t.Errorf("task ran %d more times after Cancel", calls-after)
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := SlogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	sink.Emit(Record{
		Event:     ChannelOutput,
		Time:      42,
		TrackType: "bound",
		TrackInfo: track.Info{ID: "t1", Label: "unknown"},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "AudioOutput event log" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["event"] != "audiooutput" {
		t.Errorf("event = %v", entry["event"])
	}
	info, ok := entry["trackInfo"].(map[string]any)
	if !ok || info["id"] != "t1" {
		t.Errorf("trackInfo = %v", entry["trackInfo"])
	}
}

func TestRecordJSON(t *testing.T) {
	data, err := json.Marshal(Record{Event: ChannelInput, Time: 1, TrackType: "undefined"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"trackInfo":{}`) {
		t.Errorf("empty track info not encoded as {}: %s", data)
	}
}
