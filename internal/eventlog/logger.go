// Package eventlog writes diagnostic records, gap measurements and track
// changes to a single JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// EventType represents the type of event.
type EventType string

// Diagnostic event types, one per sampler channel.
const (
	AudioInput  EventType = EventType(diag.ChannelInput)
	AudioOutput EventType = EventType(diag.ChannelOutput)
)

// Gap event types.
const (
	GapMeasured EventType = "gap_measured"
)

// Track event types.
const (
	TrackBound       EventType = "track_bound"
	TrackPlaceholder EventType = "track_placeholder"
	TrackCleared     EventType = "track_cleared"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// GapDetails contains gap-specific event details.
type GapDetails struct {
	GapMs     float64    `json:"gap_ms"`
	TrackInfo track.Info `json:"track_info"`
}

// TrackDetails contains track change details.
type TrackDetails struct {
	TrackType string     `json:"track_type"`
	TrackInfo track.Info `json:"track_info"`
}

// Logger writes events to a JSON lines file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
	now      func() time.Time
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "gapmeter", "logs", fmt.Sprintf("%d", port), "gapmeter.jsonl")
	default:
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/gapmeter", fmt.Sprintf("%d", port), "gapmeter.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	l := &Logger{filePath: filePath, now: time.Now}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("log file closed")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	return l.encoder.Encode(event)
}

// Emit logs a diagnostic record. It implements diag.Sink.
func (l *Logger) Emit(rec diag.Record) {
	err := l.Log(&Event{
		Timestamp: time.UnixMilli(rec.Time),
		Type:      EventType(rec.Event),
		Details:   rec,
	})
	if err != nil {
		slog.Warn("failed to log diagnostic record", "event", rec.Event, "error", err)
	}
}

// LogGap logs a gap measurement.
func (l *Logger) LogGap(gapMs float64, info track.Info) error {
	return l.Log(&Event{
		Type:    GapMeasured,
		Message: fmt.Sprintf("%.1f ms", gapMs),
		Details: &GapDetails{GapMs: gapMs, TrackInfo: info},
	})
}

// LogTrack logs a track reference change.
func (l *Logger) LogTrack(ref track.Reference) error {
	eventType := TrackCleared
	switch track.TypeOf(ref) {
	case "bound":
		eventType = TrackBound
	case "placeholder":
		eventType = TrackPlaceholder
	}
	return l.Log(&Event{
		Type: eventType,
		Details: &TrackDetails{
			TrackType: track.TypeOf(ref),
			TrackInfo: track.Extract(ref),
		},
	})
}

// Rotate moves the current file aside with a timestamp suffix and starts a
// new one. It returns the path of the rotated file, or "" if it was empty.
func (l *Logger) Rotate() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return "", fmt.Errorf("log file closed")
	}
	info, err := l.file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}
	if err := l.file.Close(); err != nil {
		return "", fmt.Errorf("close log file: %w", err)
	}
	l.file = nil

	ext := filepath.Ext(l.filePath)
	rotated := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(l.filePath, ext), l.now().UTC().Format("20060102T150405.000"), ext)
	renameErr := os.Rename(l.filePath, rotated)
	if err := l.open(); err != nil {
		return "", err
	}
	if renameErr != nil {
		return "", fmt.Errorf("rename log file: %w", renameErr)
	}
	return rotated, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll        TypeFilter = "all"
	FilterDiagnostic TypeFilter = "diagnostic"
	FilterGap        TypeFilter = "gap"
	FilterTrack      TypeFilter = "track"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// Matches reports whether the filter admits t. An empty filter admits all.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterDiagnostic:
		return IsDiagnosticEvent(t)
	case FilterGap:
		return t == GapMeasured
	case FilterTrack:
		return IsTrackEvent(t)
	default:
		return true
	}
}

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, newest first,
// and whether older matching events remain. n is capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// IsDiagnosticEvent returns true if the event type is a sampler record.
func IsDiagnosticEvent(t EventType) bool {
	return t == AudioInput || t == AudioOutput
}

// IsTrackEvent returns true if the event type is a track change.
func IsTrackEvent(t EventType) bool {
	return t == TrackBound || t == TrackPlaceholder || t == TrackCleared
}
