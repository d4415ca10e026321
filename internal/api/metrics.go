package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/camera"
	"github.com/nerrad567/graycam/internal/control"
	"github.com/nerrad567/graycam/internal/stream"
)

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Base    string               `json:"base,omitempty"`
	MQTT    MQTTMetrics          `json:"mqtt"`
	Camera  *camera.PoolStats    `json:"camera,omitempty"`
	Mailbox *bridge.MailboxStats `json:"mailbox,omitempty"`
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Runtime       RuntimeMetrics       `json:"runtime"`
	WebSocket     HubStats             `json:"websocket"`
	MQTT          MQTTMetrics          `json:"mqtt"`
	Mailbox       *bridge.MailboxStats `json:"mailbox,omitempty"`
	Camera        *camera.PoolStats    `json:"camera,omitempty"`
	Stream        stream.Stats         `json:"stream"`
	Control       *control.Stats       `json:"control,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// handleHealth reports bridge, camera and mailbox state. The status is
// degraded while MQTT is down; the HTTP code stays 200 because the camera
// endpoints still work.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  HealthOK,
		Version: s.version,
		Base:    s.base,
		MQTT:    s.mqttMetrics(),
	}
	if !resp.MQTT.Connected {
		resp.Status = HealthDegraded
	}
	if s.pool != nil {
		st := s.pool.Stats()
		resp.Camera = &st
	}
	if s.mailbox != nil {
		st := s.mailbox.Stats()
		resp.Mailbox = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:   s.mqttMetrics(),
		Stream: s.frames.Stats(),
	}
	if s.hub != nil {
		metrics.WebSocket = s.hub.Stats()
	}
	if s.mailbox != nil {
		st := s.mailbox.Stats()
		metrics.Mailbox = &st
	}
	if s.pool != nil {
		st := s.pool.Stats()
		metrics.Camera = &st
	}
	if s.dispatcher != nil {
		st := s.dispatcher.Stats()
		metrics.Control = &st
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) mqttMetrics() MQTTMetrics {
	if s.mqtt == nil {
		return MQTTMetrics{}
	}
	return MQTTMetrics{Connected: s.mqtt.IsConnected()}
}
