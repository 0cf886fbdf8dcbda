package main

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-gapmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-gapmeter/internal/server"
	"github.com/oszuidwest/zwfm-gapmeter/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleAPIStatus returns the same status message the WebSocket pushes.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIEvents returns a page of the event log, newest first.
// GET /api/events?limit=100&offset=0&filter=gap
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var req server.EventsGetRequest
	var err error
	if req.Limit, err = queryInt(q.Get("limit")); err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	if req.Offset, err = queryInt(q.Get("offset")); err != nil {
		s.writeError(w, http.StatusBadRequest, "offset must be a number")
		return
	}
	req.Filter = q.Get("filter")

	if verr := server.Validate(&req); verr != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]*types.ValidationError{"error": verr})
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.logPath, cmp.Or(req.Limit, server.DefaultEventsLimit), req.Offset, eventlog.TypeFilter(req.Filter))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, types.WSEventsResult{
		Type:    "events",
		Success: true,
		Events:  events,
		HasMore: hasMore,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
