// Package notify alerts external systems when a measured input gap exceeds
// a configured length.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
)

// AppName is the application name used in notifications.
const AppName = "ZuidWest FM Gap Meter"

// Config selects the notification targets.
type Config struct {
	WebhookURL   string
	ZabbixServer string
	ZabbixPort   int
	ZabbixHost   string
	ZabbixKey    string
	// MinGap is the shortest gap that triggers a notification.
	MinGap time.Duration
}

// HasWebhook reports whether a webhook URL is configured.
func (c *Config) HasWebhook() bool {
	return c.WebhookURL != ""
}

// HasZabbix reports whether all Zabbix fields are configured.
func (c *Config) HasZabbix() bool {
	return c.ZabbixServer != "" && c.ZabbixHost != "" && c.ZabbixKey != ""
}

// GapNotifier sends long gaps to the configured webhook and Zabbix trapper.
// Deliveries run in the background so the caller is never blocked on network
// I/O.
type GapNotifier struct {
	cfg Config
	now func() time.Time
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool

	send func(name string, fn func() error)
}

// NewGapNotifier returns a notifier for cfg.
func NewGapNotifier(cfg Config) *GapNotifier {
	n := &GapNotifier{cfg: cfg, now: time.Now}
	n.send = n.deliver
	return n
}

// Enabled reports whether any target is configured.
func (n *GapNotifier) Enabled() bool {
	return n.cfg.HasWebhook() || n.cfg.HasZabbix()
}

// HandleGap notifies every configured target of a gap at least MinGap long.
func (n *GapNotifier) HandleGap(d time.Duration, info track.Info) {
	if d < n.cfg.MinGap {
		return
	}
	gapMs := float64(d) / float64(time.Millisecond)
	ts := n.now().UTC().Format(time.RFC3339)

	if n.cfg.HasWebhook() {
		payload := &WebhookPayload{
			Event:     "gap_measured",
			GapMs:     gapMs,
			TrackInfo: info,
			Message:   fmt.Sprintf("%s measured a %.1f ms input gap", AppName, gapMs),
			Timestamp: ts,
		}
		n.send("webhook", func() error { return sendWebhook(n.cfg.WebhookURL, payload) })
	}
	if n.cfg.HasZabbix() {
		value := fmt.Sprintf("event=GAP gap_ms=%.1f track_id=%s", gapMs, info.ID)
		n.send("zabbix", func() error {
			return sendZabbixEvent(n.cfg.ZabbixServer, n.cfg.ZabbixPort, n.cfg.ZabbixHost, n.cfg.ZabbixKey, value)
		})
	}
}

// Close stops accepting gaps and blocks until in-flight notifications have
// finished.
func (n *GapNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *GapNotifier) deliver(name string, fn func() error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		slog.Warn("notification dropped after shutdown", "type", name)
		return
	}
	n.wg.Go(func() {
		if err := fn(); err != nil {
			slog.Error("notification failed", "type", name, "error", err)
			return
		}
		slog.Info("notification sent", "type", name)
	})
}
