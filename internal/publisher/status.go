package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/camera"
	"github.com/nerrad567/graycam/internal/stream"
)

// DefaultStatusInterval is the status publication period.
const DefaultStatusInterval = 30 * time.Second

// Status is the JSON document published to <base>/Status. Uptime,
// Timestamp and Firmware keep the field names existing dashboards expect.
type Status struct {
	Uptime    int64  `json:"Uptime"`
	Timestamp int64  `json:"Timestamp"`
	Firmware  string `json:"Firmware"`

	Connected bool                 `json:"Connected"`
	Mailbox   *bridge.MailboxStats `json:"Mailbox,omitempty"`
	Stream    *stream.Stats        `json:"Stream,omitempty"`
	Camera    *camera.PoolStats    `json:"Camera,omitempty"`
}

// StatusConfig configures a StatusReporter. Mailbox, Streamer and Camera
// are optional sources of extended fields.
type StatusConfig struct {
	// Firmware is reported verbatim, typically "<version> <build date>".
	Firmware string

	Interval time.Duration

	Publisher Publisher
	Mailbox   interface{ Stats() bridge.MailboxStats }
	Streamer  interface{ Stats() stream.Stats }
	Camera    interface{ Stats() camera.PoolStats }

	// OnStatus, if set, receives every status built, published or not.
	OnStatus func(Status)

	Logger   Logger
	Recorder Recorder
}

// StatusReporter publishes Status periodically.
type StatusReporter struct {
	cfg       StatusConfig
	startTime time.Time
	now       func() time.Time
	ticker    *ticker
}

// NewStatusReporter creates a StatusReporter. Call Start to begin.
func NewStatusReporter(cfg StatusConfig) *StatusReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultStatusInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &StatusReporter{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		ticker:    newTicker(cfg.Interval),
	}
}

// Start begins periodic publication. Call Stop to shut down.
func (r *StatusReporter) Start(ctx context.Context) {
	r.ticker.start(ctx, func(context.Context) {
		if err := r.PublishNow(); err != nil {
			r.cfg.Logger.Warn("status publish failed", "error", err)
		}
	})
}

// Stop ends periodic publication. Safe to call multiple times.
func (r *StatusReporter) Stop() {
	r.ticker.stop()
}

// Build assembles the current status.
func (r *StatusReporter) Build() Status {
	now := r.now()
	st := Status{
		Uptime:    int64(now.Sub(r.startTime) / time.Second),
		Timestamp: now.Unix(),
		Firmware:  r.cfg.Firmware,
	}
	if r.cfg.Publisher != nil {
		st.Connected = r.cfg.Publisher.IsConnected()
	}
	if r.cfg.Mailbox != nil {
		s := r.cfg.Mailbox.Stats()
		st.Mailbox = &s
	}
	if r.cfg.Streamer != nil {
		s := r.cfg.Streamer.Stats()
		st.Stream = &s
	}
	if r.cfg.Camera != nil {
		s := r.cfg.Camera.Stats()
		st.Camera = &s
	}
	return st
}

// PublishNow builds and publishes the status immediately. While the
// broker is unreachable the status is skipped and nil is returned.
func (r *StatusReporter) PublishNow() error {
	st := r.Build()
	if r.cfg.OnStatus != nil {
		r.cfg.OnStatus(st)
	}

	if r.cfg.Publisher == nil || !st.Connected {
		r.cfg.Recorder.Publication(KindStatus, ResultSkipped)
		r.cfg.Logger.Debug("status skipped, mqtt disconnected")
		return nil
	}

	payload, err := json.MarshalIndent(st, "", "\t")
	if err != nil {
		r.cfg.Recorder.Publication(KindStatus, ResultError)
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := r.cfg.Publisher.Publish(SubtopicStatus, payload); err != nil {
		r.cfg.Recorder.Publication(KindStatus, ResultError)
		return fmt.Errorf("publishing status: %w", err)
	}

	r.cfg.Recorder.Publication(KindStatus, ResultOK)
	return nil
}
