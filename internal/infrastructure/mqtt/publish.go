package mqtt

import (
	"bytes"
	"fmt"

	"github.com/nerrad567/graycam/internal/bridge"
)

// Publish queues a copy of payload for topic and returns its call id
// without waiting for the broker. The outcome arrives later as
// EventPublished or EventError.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) (int, error) {
	if topic == "" {
		return -1, ErrInvalidTopic
	}
	if qos > maxQoS {
		return -1, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return -1, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if !c.IsConnected() {
		return -1, ErrNotConnected
	}

	id := c.nextID()
	// Paho sends from its own goroutine; the caller may reuse payload.
	token := c.client.Publish(topic, qos, retained, bytes.Clone(payload))
	c.awaitAck(token, bridge.EventPublished, id, topic)
	return id, nil
}
