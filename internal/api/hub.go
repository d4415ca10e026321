package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/control"
	"github.com/nerrad567/graycam/internal/infrastructure/config"
	"github.com/nerrad567/graycam/internal/infrastructure/logging"
)

// maxWatchFilters bounds the filters one monitor may hold.
const maxWatchFilters = 16

// HubStats is a snapshot of monitor fan-out counters.
type HubStats struct {
	Monitors  int    `json:"monitors"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Hub fans records out to WebSocket monitors. Each monitor holds a set of
// subtopic filters using MQTT wildcard syntax; a record reaches every
// monitor with at least one matching filter.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	monitors map[*monitor]struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub. Run must be started for shutdown to reach monitors.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		monitors: make(map[*monitor]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every monitor.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.monitors {
		delete(h.monitors, m)
		m.shut()
		if m.conn != nil {
			m.conn.Close()
		}
	}
}

func (h *Hub) attach(m *monitor) {
	h.mu.Lock()
	h.monitors[m] = struct{}{}
	n := len(h.monitors)
	h.mu.Unlock()
	h.logger.Debug("monitor attached", "monitors", n)
}

// detach removes m and closes its outbound queue.
func (h *Hub) detach(m *monitor) {
	h.mu.Lock()
	_, ok := h.monitors[m]
	delete(h.monitors, m)
	n := len(h.monitors)
	h.mu.Unlock()

	if ok {
		m.shut()
		h.logger.Debug("monitor detached", "monitors", n)
	}
}

// Broadcast implements control.Broadcaster. Payloads carrying a subtopic
// are filtered per monitor; anything else goes to every watching monitor.
func (h *Hub) Broadcast(channel string, payload any) {
	subtopic, filtered := subtopicOf(payload)

	frame, err := json.Marshal(Frame{
		Op:      OpRecord,
		Channel: channel,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding monitor record", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for m := range h.monitors {
		if !m.wants(subtopic, filtered) {
			continue
		}
		if m.offer(frame) {
			h.delivered.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

// Stats returns the current counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.monitors)
	h.mu.RUnlock()
	return HubStats{
		Monitors:  n,
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

func subtopicOf(payload any) (string, bool) {
	switch p := payload.(type) {
	case control.InboundMessage:
		return p.Subtopic, true
	case *control.InboundMessage:
		return p.Subtopic, true
	default:
		return "", false
	}
}

// validFilter reports whether f is a well-formed subtopic filter:
// "+" fills a whole level and "#" may only be the last level.
func validFilter(f string) bool {
	if f == "" || len(f) > bridge.MaxSubtopicLen {
		return false
	}
	levels := strings.Split(f, bridge.Separator)
	for i, l := range levels {
		switch {
		case l == "#":
			if i != len(levels)-1 {
				return false
			}
		case l == "+":
		case strings.ContainsAny(l, "+#"):
			return false
		}
	}
	return true
}

// matchFilter reports whether subtopic matches filter. "a/#" also
// matches "a" itself.
func matchFilter(filter, subtopic string) bool {
	fl := strings.Split(filter, bridge.Separator)
	tl := strings.Split(subtopic, bridge.Separator)

	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
