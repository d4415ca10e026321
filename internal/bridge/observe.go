package bridge

// Logger is the logging surface the bridge needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives bridge counters. The metrics package implements it
// with Prometheus collectors.
type Recorder interface {
	// InboundRecord counts one Enqueue by result: "accepted", "malformed" or "evicted".
	InboundRecord(result string)

	// OutboundCall counts one Gate operation ("publish", "subscribe",
	// "unsubscribe") by result: "ok", "not_connected" or "error".
	OutboundCall(op, result string)

	// Connection reports a connection state transition.
	Connection(connected bool)

	// MailboxDepth reports the current number of queued records.
	MailboxDepth(n int)
}

// Inbound and outbound result labels.
const (
	ResultAccepted     = "accepted"
	ResultMalformed    = "malformed"
	ResultEvicted      = "evicted"
	ResultOK           = "ok"
	ResultNotConnected = "not_connected"
	ResultError        = "error"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) InboundRecord(string)        {}
func (noopRecorder) OutboundCall(string, string) {}
func (noopRecorder) Connection(bool)             {}
func (noopRecorder) MailboxDepth(int)            {}
