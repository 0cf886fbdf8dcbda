// Package metrics exposes gap and diagnostic counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the gap meter metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	// Gap measurements
	gapSeconds prometheus.Histogram
	lastGap    prometheus.Gauge

	// Counters
	records      *prometheus.CounterVec
	trackChanges *prometheus.CounterVec
	rtcpPackets  *prometheus.CounterVec
}

// New creates a collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		gapSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gapmeter_gap_seconds",
			Help:    "Measured gaps between the input going mute and coming back",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastGap: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gapmeter_last_gap_seconds",
			Help: "Most recently measured gap",
		}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gapmeter_diagnostic_records_total",
			Help: "Diagnostic records emitted per channel",
		}, []string{"event", "track_type"}),
		trackChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gapmeter_track_changes_total",
			Help: "Track reference changes by new reference type",
		}, []string{"track_type"}),
		rtcpPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gapmeter_rtcp_packets_total",
			Help: "RTCP packets received from the publisher",
		}, []string{"type"}),
	}
}

// Emit counts a diagnostic record. It implements diag.Sink.
func (c *Collector) Emit(rec diag.Record) {
	c.records.WithLabelValues(string(rec.Event), rec.TrackType).Inc()
}

// ObserveGap records a measured gap.
func (c *Collector) ObserveGap(d time.Duration) {
	c.gapSeconds.Observe(d.Seconds())
	c.lastGap.Set(d.Seconds())
}

// TrackChanged counts a reference change.
func (c *Collector) TrackChanged(ref track.Reference) {
	c.trackChanges.WithLabelValues(track.TypeOf(ref)).Inc()
}

// RTCPPacket counts one received control packet by type.
func (c *Collector) RTCPPacket(p rtcp.Packet) {
	c.rtcpPackets.WithLabelValues(rtcpType(p)).Inc()
}

func rtcpType(p rtcp.Packet) string {
	switch p.(type) {
	case *rtcp.SenderReport:
		return "sender_report"
	case *rtcp.ReceiverReport:
		return "receiver_report"
	case *rtcp.SourceDescription:
		return "source_description"
	case *rtcp.Goodbye:
		return "goodbye"
	default:
		return "other"
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ diag.Sink = (*Collector)(nil)
