// Package metrics exposes graycam counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graycam"

// Metrics holds the collectors for one process. It implements
// bridge.Recorder and stream.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	// InboundRecords counts mailbox enqueues by result.
	InboundRecords *prometheus.CounterVec

	// OutboundCalls counts gate operations by op and result.
	OutboundCalls *prometheus.CounterVec

	// Connected is 1 while the broker session is up.
	Connected prometheus.Gauge

	// Reconnects counts connect events after the first.
	Reconnects prometheus.Counter

	// MailboxQueued is the number of queued inbound records.
	MailboxQueued prometheus.Gauge

	// ActiveStreams is the number of open MJPEG streams.
	ActiveStreams prometheus.Gauge

	// StreamsEnded counts finished streams by reason.
	StreamsEnded *prometheus.CounterVec

	// FramesStreamed counts multipart frames written.
	FramesStreamed prometheus.Counter

	// FrameBytes observes streamed frame sizes.
	FrameBytes prometheus.Histogram

	// Snapshots counts snapshot requests by result.
	Snapshots *prometheus.CounterVec

	// Published counts periodic publications by kind and result.
	Published *prometheus.CounterVec

	connectedOnce atomic.Bool
}

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		InboundRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailbox",
			Name:      "records_total",
			Help:      "Inbound MQTT records offered to the mailbox, by result.",
		}, []string{"result"}),
		OutboundCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "outbound_calls_total",
			Help:      "Publish, subscribe and unsubscribe calls, by result.",
		}, []string{"op", "result"}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 while the broker session is open.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "reconnects_total",
			Help:      "Broker sessions opened after the first.",
		}),
		MailboxQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mailbox",
			Name:      "depth",
			Help:      "Records waiting in the inbound mailbox.",
		}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Open MJPEG streams.",
		}),
		StreamsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ended_total",
			Help:      "Finished MJPEG streams, by reason.",
		}, []string{"reason"}),
		FramesStreamed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames written to MJPEG streams.",
		}),
		FrameBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frame_bytes",
			Help:      "Size of streamed JPEG frames.",
			Buckets:   prometheus.ExponentialBuckets(4<<10, 2, 8),
		}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "snapshots_total",
			Help:      "Snapshot requests, by result.",
		}, []string{"result"}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "publications_total",
			Help:      "Periodic status and image publications, by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ===== bridge.Recorder =====

// InboundRecord implements bridge.Recorder.
func (m *Metrics) InboundRecord(result string) {
	m.InboundRecords.WithLabelValues(result).Inc()
}

// OutboundCall implements bridge.Recorder.
func (m *Metrics) OutboundCall(op, result string) {
	m.OutboundCalls.WithLabelValues(op, result).Inc()
}

// Connection implements bridge.Recorder.
func (m *Metrics) Connection(connected bool) {
	if !connected {
		m.Connected.Set(0)
		return
	}
	m.Connected.Set(1)
	if !m.connectedOnce.CompareAndSwap(false, true) {
		m.Reconnects.Inc()
	}
}

// MailboxDepth implements bridge.Recorder.
func (m *Metrics) MailboxDepth(n int) {
	m.MailboxQueued.Set(float64(n))
}

// ===== stream.Recorder =====

// StreamStarted implements stream.Recorder.
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded implements stream.Recorder.
func (m *Metrics) StreamEnded(reason string) {
	m.ActiveStreams.Dec()
	m.StreamsEnded.WithLabelValues(reason).Inc()
}

// FrameStreamed implements stream.Recorder.
func (m *Metrics) FrameStreamed(bytes int) {
	m.FramesStreamed.Inc()
	m.FrameBytes.Observe(float64(bytes))
}

// Snapshot implements stream.Recorder.
func (m *Metrics) Snapshot(result string) {
	m.Snapshots.WithLabelValues(result).Inc()
}

// ===== publisher.Recorder =====

// Publication counts one periodic publication.
func (m *Metrics) Publication(kind, result string) {
	m.Published.WithLabelValues(kind, result).Inc()
}
