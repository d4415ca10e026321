package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nerrad567/graycam/internal/camera"
)

// Boundary separates multipart parts. Viewers written against the
// ESP32-CAM web server expect this exact value.
const Boundary = "123456789000000000000987654321"

// ContentType is the stream response type.
const ContentType = "multipart/x-mixed-replace;boundary=" + Boundary

var boundaryChunk = []byte("\r\n--" + Boundary + "\r\n")

// Logger is the logging surface the stream package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives stream and snapshot measurements.
type Recorder interface {
	StreamStarted()
	StreamEnded(reason string)
	FrameStreamed(bytes int)
	Snapshot(result string)
}

// Stream end reasons and snapshot results.
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultTranscode   = "transcode_error"
	ResultWrite       = "write_error"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) StreamStarted()     {}
func (noopRecorder) StreamEnded(string) {}
func (noopRecorder) FrameStreamed(int)  {}
func (noopRecorder) Snapshot(string)    {}

// Config configures a Streamer.
type Config struct {
	// Quality is the JPEG quality for transcoded frames.
	Quality int

	// MaxFPS caps frames per second per stream. Zero means as fast as the
	// camera delivers.
	MaxFPS float64

	Logger   Logger
	Recorder Recorder
}

// Stats is a snapshot of streamer counters.
type Stats struct {
	ActiveStreams int64  `json:"active_streams"`
	TotalStreams  uint64 `json:"total_streams"`
	Frames        uint64 `json:"frames"`
	Bytes         uint64 `json:"bytes"`

	// Snapshots counts snapshots sent in full; failures are only visible
	// through the Recorder.
	Snapshots uint64 `json:"snapshots"`
}

// Streamer serves frames from one camera driver to any number of clients.
//
// Thread Safety: all methods are safe for concurrent use.
type Streamer struct {
	driver  camera.Driver
	quality int
	maxFPS  float64
	logger  Logger
	rec     Recorder

	active    atomic.Int64
	total     atomic.Uint64
	frames    atomic.Uint64
	bytes     atomic.Uint64
	snapshots atomic.Uint64
}

// New creates a Streamer reading from driver.
func New(driver camera.Driver, cfg Config) *Streamer {
	if cfg.Quality <= 0 {
		cfg.Quality = camera.DefaultQuality
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &Streamer{
		driver:  driver,
		quality: cfg.Quality,
		maxFPS:  cfg.MaxFPS,
		logger:  cfg.Logger,
		rec:     cfg.Recorder,
	}
}

// Stream writes frames to w until acquiring, encoding or writing a frame
// fails. It always returns a non-nil error naming the step that ended it.
func (s *Streamer) Stream(ctx context.Context, w ChunkWriter) error {
	id := uuid.NewString()
	started := time.Now()

	s.active.Add(1)
	s.total.Add(1)
	s.rec.StreamStarted()
	defer s.active.Add(-1)

	var limiter *rate.Limiter
	if s.maxFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.maxFPS), 1)
	}

	w.SetContentType(ContentType)
	s.logger.Debug("stream started", "stream_id", id, "max_fps", s.maxFPS)

	var (
		frames int
		header []byte
		err    error
	)
	for {
		if limiter != nil {
			if werr := limiter.Wait(ctx); werr != nil {
				err = fmt.Errorf("%w: %w", ErrResourceUnavailable, werr)
				break
			}
		}

		var n int
		header, n, err = s.writeFrame(ctx, w, header)
		if err != nil {
			break
		}
		frames++
		s.frames.Add(1)
		s.bytes.Add(uint64(n))
		s.rec.FrameStreamed(n)
	}

	reason := endReason(err)
	s.rec.StreamEnded(reason)
	s.logger.Debug("stream ended",
		"stream_id", id,
		"frames", frames,
		"duration", time.Since(started).Round(time.Millisecond),
		"reason", reason,
		"error", err,
	)
	return err
}

// writeFrame runs one acquire, transcode, write, release cycle. header is
// scratch space for the part header and is returned for reuse.
func (s *Streamer) writeFrame(ctx context.Context, w ChunkWriter, header []byte) ([]byte, int, error) {
	lease, err := camera.Borrow(ctx, s.driver)
	if err != nil {
		return header, 0, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	defer lease.Release()

	jpg, err := lease.JPEG(s.quality)
	if err != nil {
		return header, 0, fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	if err := w.WriteChunk(boundaryChunk); err != nil {
		return header, 0, fmt.Errorf("%w: boundary: %w", ErrWrite, err)
	}

	header = append(header[:0], "Content-Type: image/jpeg\r\nContent-Length: "...)
	header = strconv.AppendInt(header, int64(len(jpg)), 10)
	header = append(header, "\r\n\r\n"...)
	if err := w.WriteChunk(header); err != nil {
		return header, 0, fmt.Errorf("%w: header: %w", ErrWrite, err)
	}

	if err := w.WriteChunk(jpg); err != nil {
		return header, 0, fmt.Errorf("%w: payload: %w", ErrWrite, err)
	}
	return header, len(jpg), nil
}

// Stats returns a snapshot of streamer counters.
func (s *Streamer) Stats() Stats {
	return Stats{
		ActiveStreams: s.active.Load(),
		TotalStreams:  s.total.Load(),
		Frames:        s.frames.Load(),
		Bytes:         s.bytes.Load(),
		Snapshots:     s.snapshots.Load(),
	}
}

func endReason(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrWrite):
		return ResultWrite
	case errors.Is(err, ErrTranscode):
		return ResultTranscode
	default:
		return ResultUnavailable
	}
}
