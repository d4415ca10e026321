package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementBridgeStats is written once per status tick.
const measurementBridgeStats = "bridge_stats"

// BridgeStats is one telemetry sample of the bridge.
type BridgeStats struct {
	Connected bool
	Uptime    time.Duration

	MailboxDepth     int
	MailboxAccepted  uint64
	MailboxEvicted   uint64
	MailboxMalformed uint64

	ActiveStreams  int64
	FramesStreamed uint64
	Snapshots      uint64

	CameraFailures uint64
}

// WriteBridgeStats queues a bridge_stats point tagged with the device base
// topic. The write is non-blocking; errors arrive through SetOnError.
func (c *Client) WriteBridgeStats(base string, s BridgeStats) {
	if !c.open.Load() {
		return
	}
	c.writeAPI.WritePoint(bridgeStatsPoint(base, s, time.Now()))
}

func bridgeStatsPoint(base string, s BridgeStats, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementBridgeStats,
		map[string]string{
			"device": base,
		},
		map[string]interface{}{
			"connected":         s.Connected,
			"uptime_s":          int64(s.Uptime / time.Second),
			"mailbox_depth":     s.MailboxDepth,
			"mailbox_accepted":  s.MailboxAccepted,
			"mailbox_evicted":   s.MailboxEvicted,
			"mailbox_malformed": s.MailboxMalformed,
			"active_streams":    s.ActiveStreams,
			"frames_streamed":   s.FramesStreamed,
			"snapshots":         s.Snapshots,
			"camera_failures":   s.CameraFailures,
		},
		ts,
	)
}
