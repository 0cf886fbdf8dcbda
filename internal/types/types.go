// Package types provides shared type definitions for the WebSocket and HTTP
// surfaces.
package types

import (
	"github.com/oszuidwest/zwfm-gapmeter/internal/audio"
	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-gapmeter/internal/tile"
)

// WSStatusResponse is sent to clients with the current tile state.
type WSStatusResponse struct {
	Type      string        `json:"type"`      // "status"
	Tile      tile.Snapshot `json:"tile"`      // Gap and track state
	Connected bool          `json:"connected"` // A WebRTC publisher is attached
	LogPath   string        `json:"log_path"`  // Event log file
	Version   VersionInfo   `json:"version"`   // Version information
}

// WSLevelsResponse is sent to clients with audio level updates.
type WSLevelsResponse struct {
	Type   string            `json:"type"`   // "levels"
	Levels audio.AudioLevels `json:"levels"` // Current audio levels
}

// WSDiagnostic relays one diagnostic record.
type WSDiagnostic struct {
	Type   string      `json:"type"`   // "diagnostic"
	Record diag.Record `json:"record"` // Sampler output
}

// WSEventsResult is sent in response to events/get.
type WSEventsResult struct {
	Type    string           `json:"type"`            // "events/get_result"
	Success bool             `json:"success"`         // Operation succeeded
	Error   string           `json:"error,omitempty"` // Error message if failed
	Events  []eventlog.Event `json:"events"`          // Newest first
	HasMore bool             `json:"has_more"`        // Older events remain
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
