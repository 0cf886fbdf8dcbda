package audio

// AudioLevels is the latest level measurement for the level bars.
type AudioLevels struct {
	// Left is the left channel RMS level in dB.
	Left float64 `json:"left"`
	// Right is the right channel RMS level in dB.
	Right float64 `json:"right"`
	// PeakLeft is the left channel peak level in dB.
	PeakLeft float64 `json:"peak_left"`
	// PeakRight is the right channel peak level in dB.
	PeakRight float64 `json:"peak_right"`
	// Muted reports whether the input is currently considered muted.
	Muted bool `json:"muted,omitzero"`
	// SilenceDurationMs is how long the current silence has lasted.
	SilenceDurationMs int64 `json:"silence_duration_ms,omitzero"`
}
