package mqtt

import (
	"github.com/nerrad567/graycam/internal/bridge"
)

// Subscribe queues a subscription to topic. Matching messages arrive as
// EventData through the event handler.
func (c *Client) Subscribe(topic string, qos byte) (int, error) {
	if topic == "" {
		return -1, ErrInvalidTopic
	}
	if qos > maxQoS {
		return -1, ErrInvalidQoS
	}
	if !c.IsConnected() {
		return -1, ErrNotConnected
	}

	id := c.nextID()
	// A nil callback routes messages to the default publish handler.
	token := c.client.Subscribe(topic, qos, nil)
	c.awaitAck(token, bridge.EventSubscribed, id, topic)
	return id, nil
}

// Unsubscribe queues removal of the subscription to topic.
func (c *Client) Unsubscribe(topic string) (int, error) {
	if topic == "" {
		return -1, ErrInvalidTopic
	}
	if !c.IsConnected() {
		return -1, ErrNotConnected
	}

	id := c.nextID()
	token := c.client.Unsubscribe(topic)
	c.awaitAck(token, bridge.EventUnsubscribed, id, topic)
	return id, nil
}
