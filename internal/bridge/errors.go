package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned by the Gate while the broker session is down.
	// No transport call is made.
	ErrNotConnected = errors.New("bridge: not connected")

	// ErrTransport wraps a failure reported by the transport for a send.
	ErrTransport = errors.New("bridge: transport error")

	// ErrMalformedTopic is returned by Mailbox.Enqueue for topics outside the
	// device namespace or with an empty subtopic. Diagnostic only.
	ErrMalformedTopic = errors.New("bridge: malformed topic")

	// ErrQueueOverflow marks an eviction from a full mailbox. It is counted
	// and logged but never returned to the enqueuing caller.
	ErrQueueOverflow = errors.New("bridge: mailbox overflow")

	// ErrInvalidSubtopic is returned for empty subtopics on outbound calls.
	ErrInvalidSubtopic = errors.New("bridge: subtopic cannot be empty")
)
