package audio

import (
	"sync"
	"time"
)

// SilenceConfig holds the thresholds that decide when input counts as muted.
type SilenceConfig struct {
	Threshold  float64 // dB level below which audio is considered silent
	DurationMs int64   // milliseconds of silence before the input is muted
	RecoveryMs int64   // milliseconds of audio before the input is unmuted
}

// SilenceState is the result of a silence detection update.
type SilenceState struct {
	InSilence  bool  // Input is in confirmed silence
	DurationMs int64 // Current silence duration in ms (0 if not silent)

	JustEntered     bool  // Set on the update that confirms silence
	JustRecovered   bool  // Set on the update that completes recovery
	TotalDurationMs int64 // Silence length, only set with JustRecovered
}

// SilenceDetector turns level readings into confirmed silence periods.
// It is safe for concurrent use.
type SilenceDetector struct {
	mu                sync.Mutex
	silenceStart      time.Time // when the current silence started
	recoveryStart     time.Time // when audio returned after silence
	inSilence         bool
	silenceDurationMs int64
}

// NewSilenceDetector creates a detector in the non-silent state.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds one level reading taken at now.
func (d *SilenceDetector) Update(levels Levels, cfg SilenceConfig, now time.Time) SilenceState {
	d.mu.Lock()
	defer d.mu.Unlock()

	var state SilenceState

	if levels.RMSLeft < cfg.Threshold && levels.RMSRight < cfg.Threshold {
		d.recoveryStart = time.Time{}
		if d.silenceStart.IsZero() {
			d.silenceStart = now
		}
		d.silenceDurationMs = now.Sub(d.silenceStart).Milliseconds()

		if !d.inSilence && d.silenceDurationMs >= cfg.DurationMs {
			d.inSilence = true
			state.JustEntered = true
		}
		if d.inSilence {
			state.InSilence = true
			state.DurationMs = d.silenceDurationMs
		}
		return state
	}

	if !d.inSilence {
		d.silenceStart = time.Time{}
		return state
	}

	// Audio is back; silence ends only once it has lasted RecoveryMs.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}
	if now.Sub(d.recoveryStart).Milliseconds() < cfg.RecoveryMs {
		state.InSilence = true
		return state
	}

	state.JustRecovered = true
	state.TotalDurationMs = d.silenceDurationMs
	d.inSilence = false
	d.silenceDurationMs = 0
	d.silenceStart = time.Time{}
	d.recoveryStart = time.Time{}
	return state
}

// Reset clears the detection state.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silenceStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inSilence = false
	d.silenceDurationMs = 0
}
