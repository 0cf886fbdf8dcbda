// Package ingest receives a published audio track over WebRTC and turns it
// into a bound track reference whose mute events come from level monitoring.
package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/audio"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"
)

// Opus decode parameters.
const (
	SampleRate = 48000
	Channels   = 2
	// maxFrameSamples holds 120 ms of stereo audio, the largest Opus frame.
	maxFrameSamples = SampleRate * 120 / 1000 * Channels
)

// Binder receives the reference for the currently published track.
type Binder interface {
	SetTrack(ref track.Reference)
}

// Config configures the ingest handler.
type Config struct {
	ICEServers []string
	Silence    audio.SilenceConfig
	// OnRTCP, if set, sees every control packet the publisher sends.
	OnRTCP func(rtcp.Packet)
}

// rtpSource is the part of *webrtc.TrackRemote the reader needs.
type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// rtcpSource is the part of *webrtc.RTPReceiver the control reader needs.
type rtcpSource interface {
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

// frameDecoder is the part of *opus.Decoder the reader needs.
type frameDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// Handler serves WebRTC SDP negotiation for a single publishing peer.
// A new offer replaces the current peer.
type Handler struct {
	binder Binder
	cfg    Config

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	monitor *audio.Monitor
	session uint64
}

// NewHandler creates an ingest handler that reports references to binder.
func NewHandler(binder Binder, cfg Config) *Handler {
	return &Handler{binder: binder, cfg: cfg}
}

// Levels returns the levels of the current track.
func (h *Handler) Levels() audio.AudioLevels {
	h.mu.Lock()
	m := h.monitor
	h.mu.Unlock()
	if m == nil {
		return audio.AudioLevels{Left: audio.MinDB, Right: audio.MinDB, PeakLeft: audio.MinDB, PeakRight: audio.MinDB}
	}
	return m.Levels()
}

// Connected reports whether a peer is attached.
func (h *Handler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pc != nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(h.peerConfig())
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		closePeer(pc)
		http.Error(w, "add transceiver failed", http.StatusInternalServerError)
		return
	}

	session := h.attach(pc)

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		h.startTrack(session, remote)
		go func() {
			if drainRTCP(receiver, h.cfg.OnRTCP) {
				slog.Info("WebRTC publisher said goodbye", "session", session)
				h.detach(session)
			}
		}()
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			h.detach(session)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		h.detach(session)
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		h.detach(session)
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		h.detach(session)
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(pc.LocalDescription()); err != nil {
		slog.Warn("failed to write SDP answer", "error", err)
	}
}

func (h *Handler) peerConfig() webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(h.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: h.cfg.ICEServers}}
	}
	return cfg
}

// attach makes pc the current peer, closing any previous one, and shows a
// placeholder until its audio track arrives. The binder is called under h.mu
// so references from different sessions reach it in session order.
func (h *Handler) attach(pc *webrtc.PeerConnection) uint64 {
	h.mu.Lock()
	old := h.pc
	h.session++
	session := h.session
	h.pc = pc
	h.monitor = nil
	h.binder.SetTrack(&track.Placeholder{Label: "webrtc"})
	h.mu.Unlock()

	if old != nil {
		closePeer(old)
	}
	slog.Info("WebRTC publisher connecting", "session", session)
	return session
}

// detach clears the reference if session is still current.
func (h *Handler) detach(session uint64) {
	h.mu.Lock()
	if session != h.session || h.pc == nil {
		h.mu.Unlock()
		return
	}
	pc := h.pc
	h.pc = nil
	h.monitor = nil
	h.binder.SetTrack(nil)
	h.mu.Unlock()

	closePeer(pc)
	slog.Info("WebRTC publisher disconnected", "session", session)
}

// Close disconnects the current peer.
func (h *Handler) Close() {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	h.detach(session)
}

// bind hands ref to the binder if session is still attached. It reports
// false once the session has been replaced or detached.
func (h *Handler) bind(session uint64, ref *track.Bound, monitor *audio.Monitor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if session != h.session || h.pc == nil {
		return false
	}
	h.monitor = monitor
	h.binder.SetTrack(ref)
	return true
}

func (h *Handler) startTrack(session uint64, remote *webrtc.TrackRemote) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		slog.Error("failed to create opus decoder", "error", err)
		return
	}

	monitor := audio.NewMonitor(h.cfg.Silence, Channels)
	ref := &track.Bound{
		ID:     remote.ID(),
		Label:  remote.StreamID(),
		Source: monitor.Source(),
	}
	if !h.bind(session, ref, monitor) {
		slog.Debug("WebRTC track arrived after its session ended", "session", session)
		return
	}
	slog.Info("WebRTC audio track bound", "session", session, "id", ref.ID, "label", ref.Label, "codec", remote.Codec().MimeType)

	go func() {
		if err := pump(remote, dec, monitor, time.Now); err != nil {
			slog.Info("WebRTC track ended", "session", session, "error", err)
		}
		h.detach(session)
	}()
}

// pump decodes packets from src into monitor until the source fails.
// io.EOF is reported as a clean end.
func pump(src rtpSource, dec frameDecoder, monitor *audio.Monitor, now func() time.Time) error {
	pcm := make([]int16, maxFrameSamples)
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			slog.Debug("opus decode error", "error", err)
			continue
		}
		monitor.Process(pcm[:n*Channels], now())
	}
}

// drainRTCP reads control packets until src fails or the publisher sends a
// BYE, and reports whether it ended on a BYE. Reading keeps the receiver's
// interceptors running.
func drainRTCP(src rtcpSource, observe func(rtcp.Packet)) bool {
	for {
		pkts, _, err := src.ReadRTCP()
		if err != nil {
			return false
		}
		for _, p := range pkts {
			if observe != nil {
				observe(p)
			}
			if _, ok := p.(*rtcp.Goodbye); ok {
				return true
			}
		}
	}
}

func closePeer(pc *webrtc.PeerConnection) {
	if err := pc.Close(); err != nil {
		slog.Debug("peer connection close error", "error", err)
	}
}

var (
	_ rtpSource    = (*webrtc.TrackRemote)(nil)
	_ rtcpSource   = (*webrtc.RTPReceiver)(nil)
	_ frameDecoder = (*opus.Decoder)(nil)
)
