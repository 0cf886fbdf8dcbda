package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// Monitor measures PCM frames and fires muted and unmuted events on its
// emitter when silence is confirmed or recovered. It is safe for concurrent
// use.
type Monitor struct {
	mu       sync.Mutex
	cfg      SilenceConfig
	channels int
	detector *SilenceDetector
	emitter  *track.Emitter
	levels   AudioLevels
	data     LevelData
}

// NewMonitor creates a monitor for interleaved PCM with the given channel count.
func NewMonitor(cfg SilenceConfig, channels int) *Monitor {
	return &Monitor{
		cfg:      cfg,
		channels: max(channels, 1),
		detector: NewSilenceDetector(),
		emitter:  track.NewEmitter(),
		levels:   AudioLevels{Left: MinDB, Right: MinDB, PeakLeft: MinDB, PeakRight: MinDB},
	}
}

// Source returns the event source that reports mute transitions.
func (m *Monitor) Source() *track.Emitter {
	return m.emitter
}

// SetConfig replaces the silence thresholds.
func (m *Monitor) SetConfig(cfg SilenceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Process measures one PCM frame received at now. Events fire on the calling
// goroutine after the monitor lock is released.
func (m *Monitor) Process(pcm []int16, now time.Time) {
	m.mu.Lock()
	m.data.Reset()
	ProcessSamples(pcm, m.channels, &m.data)
	lv := CalculateLevels(&m.data)
	state := m.detector.Update(lv, m.cfg, now)

	m.levels = AudioLevels{
		Left:              lv.RMSLeft,
		Right:             lv.RMSRight,
		PeakLeft:          lv.PeakLeft,
		PeakRight:         lv.PeakRight,
		Muted:             state.InSilence,
		SilenceDurationMs: state.DurationMs,
	}
	threshold := m.cfg.Threshold
	m.mu.Unlock()

	switch {
	case state.JustEntered:
		slog.Info("input muted", "level_left_db", lv.RMSLeft, "level_right_db", lv.RMSRight, "threshold_db", threshold)
		m.emitter.Emit(track.EventMuted)
	case state.JustRecovered:
		slog.Info("input unmuted", "silence_ms", state.TotalDurationMs)
		m.emitter.Emit(track.EventUnmuted)
	}
}

// Levels returns the most recent level measurement.
func (m *Monitor) Levels() AudioLevels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}

// Reset returns the monitor to the non-silent state without firing events.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detector.Reset()
	m.levels = AudioLevels{Left: MinDB, Right: MinDB, PeakLeft: MinDB, PeakRight: MinDB}
}
