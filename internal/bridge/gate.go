package bridge

import (
	"fmt"
	"sync/atomic"
)

// Delivery levels.
const (
	// PublishQoS is at-least-once. Outbound messages are never retained.
	PublishQoS byte = 1

	// SubscribeQoS is at-most-once for inbound traffic; the mailbox drops
	// under load anyway, so broker-side redelivery buys nothing.
	SubscribeQoS byte = 0
)

// Transport is the MQTT session the Gate sends through.
//
// Each call must return without waiting for the broker, and Publish must
// not hold on to payload after it returns. The returned message id is
// informational; a negative id or a non-nil error means the send was not
// issued.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) (int, error)
	Subscribe(topic string, qos byte) (int, error)
	Unsubscribe(topic string) (int, error)
}

// GateConfig configures a Gate.
type GateConfig struct {
	// Base is the device base topic.
	Base string

	// Subscriptions are subtopics (wildcards allowed) subscribed on every
	// connect, since the broker session is not persisted.
	Subscriptions []string

	Logger   Logger
	Recorder Recorder
}

// Gate is the device's only path to the broker.
//
// It tracks connection state from transport events, refuses outbound
// calls while disconnected, and routes inbound data into the Mailbox.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Connection state is written only by HandleEvent.
type Gate struct {
	base          string
	transport     Transport
	mailbox       *Mailbox
	subscriptions []string

	connected atomic.Bool

	logger   Logger
	recorder Recorder
}

// NewGate creates a Gate sending through transport and delivering inbound
// data to mailbox. The Gate starts disconnected.
func NewGate(cfg GateConfig, transport Transport, mailbox *Mailbox) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &Gate{
		base:          cfg.Base,
		transport:     transport,
		mailbox:       mailbox,
		subscriptions: append([]string(nil), cfg.Subscriptions...),
		logger:        cfg.Logger,
		recorder:      cfg.Recorder,
	}
}

// Base returns the device base topic.
func (g *Gate) Base() string {
	return g.base
}

// IsConnected reports the last connection state seen from the transport.
func (g *Gate) IsConnected() bool {
	return g.connected.Load()
}

// Publish sends payload to base/subtopic at QoS 1 without retain.
// While disconnected it returns ErrNotConnected and makes no transport call.
func (g *Gate) Publish(subtopic string, payload []byte) error {
	if !g.IsConnected() {
		g.recorder.OutboundCall("publish", ResultNotConnected)
		return ErrNotConnected
	}
	if subtopic == "" {
		g.recorder.OutboundCall("publish", ResultError)
		return ErrInvalidSubtopic
	}

	topic := Compose(g.base, subtopic)
	id, err := g.transport.Publish(topic, PublishQoS, false, payload)
	return g.result("publish", topic, id, err)
}

// Subscribe subscribes to base/subtopic.
func (g *Gate) Subscribe(subtopic string) error {
	if !g.IsConnected() {
		g.recorder.OutboundCall("subscribe", ResultNotConnected)
		return ErrNotConnected
	}
	if subtopic == "" {
		g.recorder.OutboundCall("subscribe", ResultError)
		return ErrInvalidSubtopic
	}

	topic := Compose(g.base, subtopic)
	id, err := g.transport.Subscribe(topic, SubscribeQoS)
	return g.result("subscribe", topic, id, err)
}

// Unsubscribe removes the subscription to base/subtopic.
func (g *Gate) Unsubscribe(subtopic string) error {
	if !g.IsConnected() {
		g.recorder.OutboundCall("unsubscribe", ResultNotConnected)
		return ErrNotConnected
	}
	if subtopic == "" {
		g.recorder.OutboundCall("unsubscribe", ResultError)
		return ErrInvalidSubtopic
	}

	topic := Compose(g.base, subtopic)
	id, err := g.transport.Unsubscribe(topic)
	return g.result("unsubscribe", topic, id, err)
}

func (g *Gate) result(op, topic string, id int, err error) error {
	if err == nil && id < 0 {
		err = fmt.Errorf("negative message id %d", id)
	}
	if err != nil {
		g.recorder.OutboundCall(op, ResultError)
		g.logger.Warn("mqtt send failed", "op", op, "topic", topic, "error", err)
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, op, topic, err)
	}
	g.recorder.OutboundCall(op, ResultOK)
	g.logger.Debug("mqtt send issued", "op", op, "topic", topic, "msg_id", id)
	return nil
}

// HandleEvent is the single transport callback. It returns promptly and
// never panics out to the transport.
func (g *Gate) HandleEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("mqtt event handler panic recovered", "event", ev.Kind.String(), "panic", r)
		}
	}()

	switch ev.Kind {
	case EventConnected:
		g.connected.Store(true)
		g.recorder.Connection(true)
		g.logger.Info("mqtt connected", "base", g.base)
		g.subscribeAll()

	case EventDisconnected:
		g.connected.Store(false)
		g.recorder.Connection(false)
		g.logger.Warn("mqtt disconnected", "error", ev.Err)

	case EventData:
		// Errors are diagnostic only and already logged by the mailbox.
		_ = g.mailbox.Enqueue(ev.Topic, ev.Payload) //nolint:errcheck // Diagnostic only

	case EventPublished, EventSubscribed, EventUnsubscribed:
		g.logger.Debug("mqtt ack", "event", ev.Kind.String(), "msg_id", ev.MsgID)

	case EventError:
		g.logger.Warn("mqtt transport error", "error", ev.Err)

	default:
		g.logger.Debug("mqtt event ignored", "event", ev.Kind.String())
	}
}

func (g *Gate) subscribeAll() {
	for _, sub := range g.subscriptions {
		if err := g.Subscribe(sub); err != nil {
			g.logger.Warn("subscribe on connect failed", "subtopic", sub, "error", err)
		}
	}
}
