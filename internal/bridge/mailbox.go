package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Mailbox defaults.
const (
	DefaultMailboxCapacity = 10
	DefaultMaxPayload      = 128
)

// Record is one inbound message with the base topic removed.
type Record struct {
	Subtopic   string    `json:"subtopic"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// MailboxStats is a snapshot of mailbox counters.
type MailboxStats struct {
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Accepted  uint64 `json:"accepted"`
	Delivered uint64 `json:"delivered"`
	Evicted   uint64 `json:"evicted"`
	Malformed uint64 `json:"malformed"`
}

// MailboxConfig sizes a Mailbox.
type MailboxConfig struct {
	// Base is the device base topic stripped from inbound topics.
	Base string

	// Capacity is the number of records held before the oldest is evicted.
	Capacity int

	// MaxPayload is the number of payload bytes kept per record.
	MaxPayload int

	Logger   Logger
	Recorder Recorder
}

// Mailbox is a bounded FIFO between the transport callback and the
// application. When full, Enqueue evicts the single oldest record so the
// newest message is always kept.
//
// Thread Safety:
//   - Enqueue may be called from one or more transport goroutines; writers
//     are serialised by a mutex that readers never take, so Enqueue is
//     never held up by a slow reader.
//   - TryReceive, Receive and ReceiveTimeout are safe for any number of readers.
type Mailbox struct {
	base       string
	maxPayload int
	ch         chan Record

	writeMu sync.Mutex

	accepted  atomic.Uint64
	delivered atomic.Uint64
	evicted   atomic.Uint64
	malformed atomic.Uint64

	logger   Logger
	recorder Recorder
}

// NewMailbox creates a Mailbox. Zero sizes take the defaults.
func NewMailbox(cfg MailboxConfig) *Mailbox {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultMailboxCapacity
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &Mailbox{
		base:       cfg.Base,
		maxPayload: cfg.MaxPayload,
		ch:         make(chan Record, cfg.Capacity),
		logger:     cfg.Logger,
		recorder:   cfg.Recorder,
	}
}

// Enqueue strips the base from topic and queues the record.
//
// Topics outside the base namespace, or with nothing after the base, are
// dropped with ErrMalformedTopic. The payload is copied and cut to the
// configured maximum without error. If the mailbox is full the oldest
// record is discarded first. Enqueue never blocks on readers.
func (m *Mailbox) Enqueue(topic string, payload []byte) error {
	subtopic, ok := SplitTopic(m.base, topic)
	if !ok {
		m.malformed.Add(1)
		m.recorder.InboundRecord(ResultMalformed)
		m.logger.Error("cannot extract subtopic", "topic", topic, "base", m.base)
		return ErrMalformedTopic
	}

	n := min(len(payload), m.maxPayload)
	rec := Record{
		Subtopic:   subtopic,
		Payload:    append([]byte(nil), payload[:n]...),
		ReceivedAt: time.Now(),
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	for {
		select {
		case m.ch <- rec:
			m.accepted.Add(1)
			m.recorder.InboundRecord(ResultAccepted)
			m.recorder.MailboxDepth(len(m.ch))
			return nil
		default:
		}

		// Full. A reader may drain concurrently, in which case there is
		// nothing to evict and the next send succeeds. Only one writer
		// holds writeMu, so this loop runs at most twice.
		select {
		case old := <-m.ch:
			m.evicted.Add(1)
			m.recorder.InboundRecord(ResultEvicted)
			m.logger.Warn("mailbox full, dropped oldest record",
				"dropped_subtopic", old.Subtopic,
				"error", ErrQueueOverflow,
			)
		default:
		}
	}
}

// TryReceive returns the oldest record without waiting.
// On an empty mailbox it reports false and changes nothing.
func (m *Mailbox) TryReceive() (Record, bool) {
	select {
	case rec := <-m.ch:
		m.delivered.Add(1)
		m.recorder.MailboxDepth(len(m.ch))
		return rec, true
	default:
		return Record{}, false
	}
}

// Receive waits for the oldest record until ctx is done. A queued record
// is returned even if ctx has already ended.
func (m *Mailbox) Receive(ctx context.Context) (Record, bool) {
	if rec, ok := m.TryReceive(); ok {
		return rec, true
	}
	select {
	case rec := <-m.ch:
		m.delivered.Add(1)
		m.recorder.MailboxDepth(len(m.ch))
		return rec, true
	case <-ctx.Done():
		return Record{}, false
	}
}

// ReceiveTimeout waits at most d for a record.
func (m *Mailbox) ReceiveTimeout(d time.Duration) (Record, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.Receive(ctx)
}

// Len returns the number of queued records.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Cap returns the mailbox capacity.
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}

// Base returns the base topic stripped by Enqueue.
func (m *Mailbox) Base() string {
	return m.base
}

// Stats returns a snapshot of the mailbox counters.
func (m *Mailbox) Stats() MailboxStats {
	return MailboxStats{
		Depth:     len(m.ch),
		Capacity:  cap(m.ch),
		Accepted:  m.accepted.Load(),
		Delivered: m.delivered.Load(),
		Evicted:   m.evicted.Load(),
		Malformed: m.malformed.Load(),
	}
}
