package server

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
	"github.com/oszuidwest/zwfm-gapmeter/internal/types"
)

// DefaultEventsLimit is the page size for events/get without a limit.
const DefaultEventsLimit = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Tile is the part of the audio tile the commands control.
type Tile interface {
	SetInterval(d time.Duration)
	SetTrack(ref track.Reference)
}

// IntervalStore persists the sampling interval.
type IntervalStore interface {
	SetSamplerInterval(ms int64) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	tile    Tile
	store   IntervalStore
	logPath string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(tile Tile, store IntervalStore, logPath string) *CommandHandler {
	return &CommandHandler{
		tile:    tile,
		store:   store,
		logPath: logPath,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "sampler/update").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "sampler/update":
		HandleCommand(cmd, send, h.updateSampler)
	case "events/get":
		h.handleEvents(cmd, send)
	case "track/clear":
		h.tile.SetTrack(nil)
		SendSuccess(send, cmd.Type, nil)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		return
	}

	triggerStatusUpdate()
}

func (h *CommandHandler) updateSampler(req *SamplerUpdateRequest) (any, error) {
	if err := h.store.SetSamplerInterval(req.IntervalMs); err != nil {
		return nil, err
	}
	h.tile.SetInterval(time.Duration(req.IntervalMs) * time.Millisecond)
	slog.Info("sampler interval updated", "interval_ms", req.IntervalMs)
	return map[string]int64{"interval_ms": req.IntervalMs}, nil
}

func (h *CommandHandler) handleEvents(cmd WSCommand, send chan<- any) {
	var req EventsGetRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	result := types.WSEventsResult{Type: cmd.Type + "_result"}
	events, hasMore, err := eventlog.ReadLast(h.logPath, cmp.Or(req.Limit, DefaultEventsLimit), req.Offset, eventlog.TypeFilter(req.Filter))
	if err != nil {
		result.Error = err.Error()
		result.Events = []eventlog.Event{}
	} else {
		result.Success = true
		result.Events = events
		result.HasMore = hasMore
	}
	trySend(send, cmd.Type, result)
}
