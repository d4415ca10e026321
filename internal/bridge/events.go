package bridge

import "fmt"

// EventKind identifies a transport notification.
type EventKind int

// Transport notifications delivered to Gate.HandleEvent.
const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventData
	EventPublished
	EventSubscribed
	EventUnsubscribed
	EventError
)

// String returns the event name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventData:
		return "data"
	case EventPublished:
		return "published"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one asynchronous transport notification.
type Event struct {
	Kind EventKind

	// MsgID is set for acknowledgement events.
	MsgID int

	// Topic and Payload are set for EventData.
	Topic   string
	Payload []byte

	// Err is set for EventDisconnected (cause, may be nil) and EventError.
	Err error
}

// EventHandler receives transport notifications. The transport registers
// exactly one and calls it from its own goroutines.
type EventHandler func(Event)
