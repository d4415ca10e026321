// Package control consumes inbound MQTT records.
//
// The Dispatcher drains the bridge mailbox, forwards every record to
// WebSocket monitors, and runs the handler registered for its subtopic.
// Cmd/Snapshot and Cmd/Status trigger an immediate image or status
// publication.
package control

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/graycam/internal/bridge"
)

// Command subtopics.
const (
	CmdSnapshot = "Cmd/Snapshot"
	CmdStatus   = "Cmd/Status"
)

// ChannelInbound is the WebSocket channel carrying inbound records.
const ChannelInbound = "mqtt.inbound"

// handlerTimeout bounds one command handler.
const handlerTimeout = 10 * time.Second

// Source yields inbound records. bridge.Mailbox implements it.
type Source interface {
	Receive(ctx context.Context) (bridge.Record, bool)
}

// Broadcaster fans records out to monitors. The API's WebSocket hub
// implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HandlerFunc handles one record.
type HandlerFunc func(ctx context.Context, rec bridge.Record) error

// Logger is the logging surface the dispatcher needs.
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

// InboundMessage is the WebSocket form of a record. Payloads that are not
// valid UTF-8 are base64 encoded.
type InboundMessage struct {
	Subtopic   string    `json:"subtopic"`
	Payload    string    `json:"payload"`
	Encoding   string    `json:"encoding"`
	ReceivedAt time.Time `json:"received_at"`
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Handled   uint64 `json:"handled"`
	Failed    uint64 `json:"failed"`
	Unhandled uint64 `json:"unhandled"`
}

// Dispatcher routes inbound records to handlers.
//
// Thread Safety: Register may be called while Run is active.
type Dispatcher struct {
	source      Source
	broadcaster Broadcaster
	logger      Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	received  atomic.Uint64
	handled   atomic.Uint64
	failed    atomic.Uint64
	unhandled atomic.Uint64
}

// New creates a Dispatcher reading from source. broadcaster and logger
// may be nil.
func New(source Source, broadcaster Broadcaster, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		source:      source,
		broadcaster: broadcaster,
		logger:      logger,
		handlers:    make(map[string]HandlerFunc),
	}
}

// Register sets the handler for an exact subtopic, replacing any previous one.
func (d *Dispatcher) Register(subtopic string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[subtopic] = fn
	d.mu.Unlock()
}

// Run dispatches records until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		rec, ok := d.source.Receive(ctx)
		if !ok {
			return ctx.Err()
		}
		d.Dispatch(ctx, rec)
	}
}

// Dispatch handles one record.
func (d *Dispatcher) Dispatch(ctx context.Context, rec bridge.Record) {
	d.received.Add(1)

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(ChannelInbound, toMessage(rec))
	}

	d.mu.RLock()
	fn, ok := d.handlers[rec.Subtopic]
	d.mu.RUnlock()
	if !ok {
		d.unhandled.Add(1)
		d.logger.Debug("no handler for inbound record", "subtopic", rec.Subtopic, "bytes", len(rec.Payload))
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := d.run(hctx, fn, rec); err != nil {
		d.failed.Add(1)
		d.logger.Warn("command failed", "subtopic", rec.Subtopic, "error", err)
		return
	}
	d.handled.Add(1)
	d.logger.Debug("command handled", "subtopic", rec.Subtopic)
}

// run calls fn, converting a panic into a logged failure.
func (d *Dispatcher) run(ctx context.Context, fn HandlerFunc, rec bridge.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panic recovered", "subtopic", rec.Subtopic, "panic", r)
			err = errHandlerPanic
		}
	}()
	return fn(ctx, rec)
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:  d.received.Load(),
		Handled:   d.handled.Load(),
		Failed:    d.failed.Load(),
		Unhandled: d.unhandled.Load(),
	}
}

func toMessage(rec bridge.Record) InboundMessage {
	msg := InboundMessage{
		Subtopic:   rec.Subtopic,
		ReceivedAt: rec.ReceivedAt,
	}
	if utf8.Valid(rec.Payload) {
		msg.Payload = string(rec.Payload)
		msg.Encoding = "utf8"
	} else {
		msg.Payload = base64.StdEncoding.EncodeToString(rec.Payload)
		msg.Encoding = "base64"
	}
	return msg
}
