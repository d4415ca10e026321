package publisher

import (
	"context"
	"sync"
	"time"
)

// Subtopics published under the device base topic.
const (
	SubtopicStatus   = "Status"
	SubtopicSnapshot = "Snapshot"
)

// Publication kinds and results passed to Recorder.
const (
	KindStatus = "status"
	KindImage  = "image"

	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Publisher sends to a subtopic of the base topic. bridge.Gate implements it.
type Publisher interface {
	Publish(subtopic string, payload []byte) error
	IsConnected() bool
}

// Recorder counts publications.
type Recorder interface {
	Publication(kind, result string)
}

// Logger is the logging surface the publishers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) Publication(string, string) {}

// ticker runs fn every interval until Stop or context cancellation.
// The first run is one interval after Start.
type ticker struct {
	interval time.Duration

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newTicker(interval time.Duration) *ticker {
	return &ticker{interval: interval, done: make(chan struct{})}
}

func (t *ticker) start(ctx context.Context, fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		tk := time.NewTicker(t.interval)
		defer tk.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-tk.C:
				fn(ctx)
			}
		}
	}()
}

func (t *ticker) stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
}
