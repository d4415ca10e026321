package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/graycam/internal/infrastructure/config"
)

// Monitor protocol operations.
const (
	OpWatch   = "watch"
	OpUnwatch = "unwatch"
	OpPing    = "ping"
	OpPong    = "pong"
	OpAck     = "ack"
	OpRecord  = "record"
	OpError   = "error"

	defaultWSPath = "/api/v1/ws"

	// monitorQueue is the per-monitor outbound frame buffer. Frames beyond
	// it are dropped and counted.
	monitorQueue = 64
)

// Frame is one monitor protocol message in either direction.
type Frame struct {
	Op      string   `json:"op"`
	ID      string   `json:"id,omitempty"`
	Filters []string `json:"filters,omitempty"`
	Channel string   `json:"channel,omitempty"`
	At      string   `json:"at,omitempty"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,

	// Cross-origin policy is enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// monitor is one attached WebSocket connection.
type monitor struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	mu      sync.Mutex
	closed  bool
	filters map[string]struct{}
}

func newMonitor(hub *Hub, conn *websocket.Conn) *monitor {
	return &monitor{
		hub:     hub,
		conn:    conn,
		out:     make(chan []byte, monitorQueue),
		filters: make(map[string]struct{}),
	}
}

// wants reports whether a record should be queued for m. Unfiltered
// records go to any monitor that watches something.
func (m *monitor) wants(subtopic string, filtered bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !filtered {
		return len(m.filters) > 0
	}
	for f := range m.filters {
		if matchFilter(f, subtopic) {
			return true
		}
	}
	return false
}

// offer queues frame without blocking. It returns false when the queue
// is full or m has been shut.
func (m *monitor) offer(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.out <- frame:
		return true
	default:
		return false
	}
}

func (m *monitor) shut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.out)
	}
}

func (m *monitor) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	m.offer(data)
}

func (m *monitor) replyError(id, format string, args ...any) {
	m.reply(Frame{Op: OpError, ID: id, Error: fmt.Sprintf(format, args...)})
}

// handle applies one client frame.
func (m *monitor) handle(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		m.replyError("", "malformed frame")
		return
	}

	switch in.Op {
	case OpPing:
		m.reply(Frame{Op: OpPong, ID: in.ID})

	case OpWatch:
		filters := in.Filters
		if len(filters) == 0 {
			filters = []string{"#"}
		}
		for _, f := range filters {
			if !validFilter(f) {
				m.replyError(in.ID, "invalid filter %q", f)
				return
			}
		}
		m.mu.Lock()
		if len(m.filters)+len(filters) > maxWatchFilters {
			m.mu.Unlock()
			m.replyError(in.ID, "at most %d filters", maxWatchFilters)
			return
		}
		for _, f := range filters {
			m.filters[f] = struct{}{}
		}
		m.mu.Unlock()
		m.hub.logger.Debug("monitor watching", "filters", filters)
		m.reply(Frame{Op: OpAck, ID: in.ID, Filters: filters})

	case OpUnwatch:
		m.mu.Lock()
		if len(in.Filters) == 0 {
			clear(m.filters)
		}
		for _, f := range in.Filters {
			delete(m.filters, f)
		}
		m.mu.Unlock()
		m.reply(Frame{Op: OpAck, ID: in.ID, Filters: in.Filters})

	default:
		m.replyError(in.ID, "unknown op %q", in.Op)
	}
}

// readLoop consumes client frames until the connection fails, then
// detaches m.
func (m *monitor) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		m.hub.detach(m)
		m.conn.Close()
	}()

	timeout := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return m.conn.SetReadDeadline(time.Now().Add(timeout)) }

	m.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // Read below fails if the deadline cannot be set
	m.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.hub.logger.Warn("monitor read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // Next read reports a dead connection
		m.handle(data)
	}
}

// writeLoop drains the outbound queue and keeps the connection alive with
// pings. It exits when the queue is closed or a write fails.
func (m *monitor) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		m.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		if err := m.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return m.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-m.out:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // Connection is closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket attaches a read-only monitor of inbound MQTT records.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	hub := s.Hub()
	m := newMonitor(hub, conn)
	hub.attach(m)

	go m.writeLoop(s.wsCfg)
	go m.readLoop(s.wsCfg)
}
