package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/audio"
	"github.com/oszuidwest/zwfm-gapmeter/internal/config"
	"github.com/oszuidwest/zwfm-gapmeter/internal/server"
	"github.com/oszuidwest/zwfm-gapmeter/internal/tile"
	"github.com/oszuidwest/zwfm-gapmeter/internal/types"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Version string
	Year    int
}

// Input is the publishing side of the monitor: it negotiates WebRTC peers and
// reports the levels of the published track.
type Input interface {
	http.Handler
	Levels() audio.AudioLevels
	Connected() bool
}

// Server is an HTTP server that provides the gap meter web interface.
type Server struct {
	config   *config.Config
	tile     *tile.Tile
	input    Input
	hub      *server.Hub
	commands *server.CommandHandler
	version  *VersionChecker
	metrics  http.Handler
	logPath  string

	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
}

// NewServer returns a new Server for the given tile and input. A nil metrics
// handler leaves /metrics unrouted.
func NewServer(cfg *config.Config, t *tile.Tile, input Input, hub *server.Hub, metrics http.Handler, logPath string) *Server {
	return &Server{
		config:   cfg,
		tile:     t,
		input:    input,
		hub:      hub,
		commands: server.NewCommandHandler(t, cfg, logPath),
		version:  NewVersionChecker(),
		metrics:  metrics,
		logPath:  logPath,
		watchers: make(map[chan struct{}]struct{}),
	}
}

// NotifyChange asks every connected client for a fresh status message.
func (s *Server) NotifyChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) watch() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unwatch(ch chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	s.mu.Unlock()
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.Upgrade(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := s.watch()
	defer s.unwatch(statusUpdate)

	listener := s.hub.Subscribe()
	defer s.hub.Unsubscribe(listener)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate, listener)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.Conn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.Conn, send chan<- any, done chan<- struct{}, statusUpdate chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes status, levels and diagnostic records until
// the reader exits.
func (s *Server) runWebSocketEventLoop(send chan any, done <-chan struct{}, statusUpdate <-chan struct{}, listener *server.Listener) {
	levelsTicker := time.NewTicker(100 * time.Millisecond) // 10 fps for level bars
	statusTicker := time.NewTicker(time.Second)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()
	defer close(send)

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		var msg any
		select {
		case <-done:
			return
		case <-statusUpdate:
			msg = s.buildWSStatus()
		case <-statusTicker.C:
			msg = s.buildWSStatus()
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: s.input.Levels()}
		case rec := <-listener.C:
			msg = types.WSDiagnostic{Type: "diagnostic", Record: rec}
		}
		if !trySend(msg) {
			return
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:      "status",
		Tile:      s.tile.Snapshot(),
		Connected: s.input.Connected(),
		LogPath:   s.logPath,
		Version:   s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/offer", s.input)
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/events", s.handleAPIEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("/", s.handleIndex)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleIndex serves the embedded monitor page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if err := indexTmpl.Execute(w, indexData{
		Version: Version,
		Year:    time.Now().Year(),
	}); err != nil {
		slog.Error("failed to write index.html", "error", err)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
