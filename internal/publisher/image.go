package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/graycam/internal/camera"
)

// DefaultImageInterval is the image publication period.
const DefaultImageInterval = 60 * time.Second

// ImageConfig configures an ImageReporter.
type ImageConfig struct {
	Interval time.Duration

	// Quality is used when the camera delivers raw frames.
	Quality int

	Publisher Publisher
	Driver    camera.Driver

	Logger   Logger
	Recorder Recorder
}

// ImageReporter publishes one camera frame periodically.
type ImageReporter struct {
	cfg    ImageConfig
	ticker *ticker
}

// NewImageReporter creates an ImageReporter. Call Start to begin.
func NewImageReporter(cfg ImageConfig) *ImageReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultImageInterval
	}
	if cfg.Quality <= 0 {
		cfg.Quality = camera.DefaultQuality
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &ImageReporter{
		cfg:    cfg,
		ticker: newTicker(cfg.Interval),
	}
}

// Start begins periodic publication. Call Stop to shut down.
func (r *ImageReporter) Start(ctx context.Context) {
	r.ticker.start(ctx, func(ctx context.Context) {
		if err := r.PublishNow(ctx); err != nil {
			r.cfg.Logger.Warn("image publish failed", "error", err)
		}
	})
}

// Stop ends periodic publication. Safe to call multiple times.
func (r *ImageReporter) Stop() {
	r.ticker.stop()
}

// PublishNow publishes one frame immediately. While the broker is
// unreachable no frame is acquired and nil is returned.
func (r *ImageReporter) PublishNow(ctx context.Context) error {
	if r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected() {
		r.cfg.Recorder.Publication(KindImage, ResultSkipped)
		r.cfg.Logger.Debug("image skipped, mqtt disconnected")
		return nil
	}

	lease, err := camera.Borrow(ctx, r.cfg.Driver)
	if err != nil {
		r.cfg.Recorder.Publication(KindImage, ResultError)
		return fmt.Errorf("acquiring frame: %w", err)
	}
	defer lease.Release()

	jpg, err := lease.JPEG(r.cfg.Quality)
	if err != nil {
		r.cfg.Recorder.Publication(KindImage, ResultError)
		return fmt.Errorf("encoding frame: %w", err)
	}

	// The transport copies the payload, so the frame can go back to the
	// pool as soon as Publish returns.
	if err := r.cfg.Publisher.Publish(SubtopicSnapshot, jpg); err != nil {
		r.cfg.Recorder.Publication(KindImage, ResultError)
		return fmt.Errorf("publishing frame: %w", err)
	}

	r.cfg.Recorder.Publication(KindImage, ResultOK)
	r.cfg.Logger.Debug("image published", "bytes", len(jpg), "seq", lease.Frame().Seq)
	return nil
}
