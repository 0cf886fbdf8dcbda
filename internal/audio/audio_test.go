package audio

import (
	"math"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

func tone(n int, amp int16) []int16 {
	pcm := make([]int16, n*2)
	for i := range n {
		v := int16(float64(amp) * math.Sin(2*math.Pi*float64(i)/48))
		pcm[2*i] = v
		pcm[2*i+1] = v
	}
	return pcm
}

func TestCalculateLevelsSilence(t *testing.T) {
	var data LevelData
	ProcessSamples(make([]int16, 960), 2, &data)
	lv := CalculateLevels(&data)
	if lv.RMSLeft != MinDB || lv.PeakRight != MinDB {
		t.Errorf("silence levels = %+v, want MinDB", lv)
	}
}

func TestCalculateLevelsFullScale(t *testing.T) {
	var data LevelData
	pcm := []int16{-32768, -32768, -32768, -32768}
	ProcessSamples(pcm, 2, &data)
	lv := CalculateLevels(&data)
	if math.Abs(lv.RMSLeft) > 0.001 || math.Abs(lv.PeakRight) > 0.001 {
		t.Errorf("full scale levels = %+v, want 0 dB", lv)
	}
}

func TestProcessSamplesMono(t *testing.T) {
	var data LevelData
	ProcessSamples([]int16{100, -200, 300}, 1, &data)
	if data.SampleCount != 3 {
		t.Errorf("SampleCount = %d, want 3", data.SampleCount)
	}
	if data.PeakL != 300 || data.PeakR != 300 {
		t.Errorf("peaks = %v/%v, want 300", data.PeakL, data.PeakR)
	}
}

func TestEmptyLevels(t *testing.T) {
	lv := CalculateLevels(&LevelData{})
	if lv.RMSLeft != MinDB || lv.RMSRight != MinDB {
		t.Errorf("empty levels = %+v", lv)
	}
}

func TestSilenceDetector(t *testing.T) {
	cfg := SilenceConfig{Threshold: -40, DurationMs: 100, RecoveryMs: 50}
	d := NewSilenceDetector()
	quiet := Levels{RMSLeft: -60, RMSRight: -60}
	loud := Levels{RMSLeft: -10, RMSRight: -10}
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	if s := d.Update(quiet, cfg, at(0)); s.InSilence || s.JustEntered {
		t.Fatalf("silence confirmed too early: %+v", s)
	}
	if s := d.Update(quiet, cfg, at(100)); !s.JustEntered || !s.InSilence {
		t.Fatalf("silence not entered at threshold: %+v", s)
	}
	if s := d.Update(quiet, cfg, at(120)); s.JustEntered {
		t.Fatalf("JustEntered repeated: %+v", s)
	}
	if s := d.Update(loud, cfg, at(130)); !s.InSilence || s.JustRecovered {
		t.Fatalf("recovered before recovery period: %+v", s)
	}
	s := d.Update(loud, cfg, at(180))
	if !s.JustRecovered || s.InSilence {
		t.Fatalf("not recovered after recovery period: %+v", s)
	}
	if s.TotalDurationMs != 120 {
		t.Errorf("TotalDurationMs = %d, want 120", s.TotalDurationMs)
	}
}

func TestSilenceDetectorShortDip(t *testing.T) {
	cfg := SilenceConfig{Threshold: -40, DurationMs: 100, RecoveryMs: 50}
	d := NewSilenceDetector()
	start := time.Unix(0, 0)

	d.Update(Levels{RMSLeft: -60, RMSRight: -60}, cfg, start)
	d.Update(Levels{RMSLeft: -10, RMSRight: -10}, cfg, start.Add(50*time.Millisecond))
	s := d.Update(Levels{RMSLeft: -60, RMSRight: -60}, cfg, start.Add(120*time.Millisecond))
	if s.InSilence {
		t.Errorf("short dip should restart the silence timer: %+v", s)
	}
}

func TestMonitorEmitsTransitions(t *testing.T) {
	m := NewMonitor(SilenceConfig{Threshold: -40, DurationMs: 40, RecoveryMs: 20}, 2)
	var events []track.Event
	m.Source().Subscribe(track.EventMuted, func() { events = append(events, track.EventMuted) })
	m.Source().Subscribe(track.EventUnmuted, func() { events = append(events, track.EventUnmuted) })

	start := time.Unix(100, 0)
	frame := 20 * time.Millisecond
	now := start
	feed := func(pcm []int16, frames int) {
		for range frames {
			m.Process(pcm, now)
			now = now.Add(frame)
		}
	}

	feed(tone(960, 16000), 3)
	feed(make([]int16, 1920), 4)
	if !m.Levels().Muted {
		t.Error("Levels().Muted = false during silence")
	}
	feed(tone(960, 16000), 3)

	want := []track.Event{track.EventMuted, track.EventUnmuted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
	if m.Levels().Left < -20 {
		t.Errorf("Levels().Left = %v after tone", m.Levels().Left)
	}
}
