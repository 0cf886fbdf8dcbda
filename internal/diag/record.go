// Package diag emits periodic diagnostic snapshots of the current track
// reference.
package diag

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// Channel tags a diagnostic stream.
type Channel string

// Diagnostic channels.
const (
	ChannelInput  Channel = "audioinput"
	ChannelOutput Channel = "audiooutput"
)

// Channels lists every channel the sampler runs.
var Channels = []Channel{ChannelInput, ChannelOutput}

// Message returns the log message for records on the channel.
func (c Channel) Message() string {
	switch c {
	case ChannelInput:
		return "AudioInput event log"
	case ChannelOutput:
		return "AudioOutput event log"
	default:
		return string(c) + " event log"
	}
}

// Record is one diagnostic snapshot.
type Record struct {
	Event     Channel    `json:"event"`
	Time      int64      `json:"time"` // Unix milliseconds
	TrackType string     `json:"trackType"`
	TrackInfo track.Info `json:"trackInfo"`
}

// Sink receives diagnostic records.
type Sink interface {
	Emit(rec Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Record)

// Emit calls f(rec).
func (f SinkFunc) Emit(rec Record) { f(rec) }

// MultiSink fans records out to several sinks in order.
type MultiSink []Sink

// Emit forwards rec to every non-nil sink.
func (m MultiSink) Emit(rec Record) {
	for _, s := range m {
		if s != nil {
			s.Emit(rec)
		}
	}
}

// SlogSink writes records to a structured logger.
type SlogSink struct {
	Logger *slog.Logger // nil uses slog.Default
}

// Emit logs rec at info level.
func (s SlogSink) Emit(rec Record) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(rec.Event.Message(),
		"event", rec.Event,
		"time", rec.Time,
		"trackType", rec.TrackType,
		slog.Group("trackInfo", "id", rec.TrackInfo.ID, "label", rec.TrackInfo.Label),
	)
}
