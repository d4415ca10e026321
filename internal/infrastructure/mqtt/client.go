package mqtt

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/infrastructure/config"
)

// Client is a paho session implementing bridge.Transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Events are delivered from paho's goroutines, in arrival order for
//     inbound data.
type Client struct {
	client pahomqtt.Client
	broker *url.URL
	base   string

	handler   bridge.EventHandler
	handlerMu sync.RWMutex

	// seq numbers outbound calls so acks can be matched in logs.
	seq atomic.Uint32

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New creates an unconnected client for brokerURL. base is the device
// base topic, used for the client ID and the availability topic.
func New(cfg config.MQTTConfig, brokerURL, base string) (*Client, error) {
	broker, err := parseBrokerURL(brokerURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		broker: broker,
		base:   base,
	}

	opts := buildClientOptions(cfg, broker, base)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.emit(bridge.Event{Kind: bridge.EventDisconnected, Err: err})
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("mqtt reconnecting", "broker", c.broker.Redacted())
		}
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleMessage(msg)
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// SetEventHandler installs the event callback. Call it before Start.
func (c *Client) SetEventHandler(h bridge.EventHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// SetLogger sets a logger for connection and error logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Broker returns the broker URL with any password redacted.
func (c *Client) Broker() string {
	return c.broker.Redacted()
}

// Start begins connecting in the background. Paho keeps retrying until
// the broker answers; EventConnected reports success.
func (c *Client) Start() {
	token := c.client.Connect()
	go func() {
		// With connect retry enabled this only completes on success or Close.
		token.Wait()
		if err := token.Error(); err != nil {
			c.emit(bridge.Event{Kind: bridge.EventError, Err: fmt.Errorf("connect: %w", err)})
		}
	}()
}

// Close publishes "offline" to the availability topic and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.client.IsConnectionOpen() {
		token := c.client.Publish(availabilityTopic(c.base), 1, true, PayloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected reports whether the session is open right now.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) handleConnect() {
	if logger := c.getLogger(); logger != nil {
		logger.Info("mqtt session open", "broker", c.broker.Redacted(), "base", c.base)
	}
	c.client.Publish(availabilityTopic(c.base), 1, true, PayloadOnline)
	c.emit(bridge.Event{Kind: bridge.EventConnected})
}

func (c *Client) handleMessage(msg pahomqtt.Message) {
	c.emit(bridge.Event{
		Kind:    bridge.EventData,
		MsgID:   int(msg.MessageID()),
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
	})
}

// emit delivers ev to the installed handler, recovering from panics so
// paho's goroutines survive a faulty handler.
func (c *Client) emit(ev bridge.Event) {
	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("mqtt event handler panic recovered", "event", ev.Kind.String(), "panic", r)
			}
		}
	}()
	h(ev)
}

// nextID returns a non-negative id for an outbound call.
func (c *Client) nextID() int {
	return int(c.seq.Add(1) & math.MaxInt32)
}

// awaitAck reports the outcome of token as an ack or error event.
func (c *Client) awaitAck(token pahomqtt.Token, kind bridge.EventKind, id int, topic string) {
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.emit(bridge.Event{Kind: bridge.EventError, MsgID: id, Topic: topic, Err: err})
			return
		}
		c.emit(bridge.Event{Kind: kind, MsgID: id, Topic: topic})
	}()
}
