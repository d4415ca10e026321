// Package api implements the HTTP server for graycam.
//
// This package provides:
//   - GET /snapshot and GET /stream, the camera endpoints
//   - health and JSON system metrics under /api/v1
//   - the Prometheus scrape endpoint at /metrics
//   - a WebSocket monitor of inbound MQTT records
//   - the middleware stack (request ID, logging, recovery, CORS)
//
// # Streaming
//
// /stream responses never end on their own, so the stream handler lifts the
// server write timeout for its connection. Errors are reported as a JSON 500
// only while nothing has been written yet; afterwards the connection is
// simply closed.
//
// # Monitors
//
// A monitor connects to /api/v1/ws and sends {"op":"watch","filters":[...]}
// with MQTT-style subtopic filters ("Cmd/#", "+/Status"). Every inbound
// record whose subtopic matches arrives as a "record" frame. Slow monitors
// lose frames rather than delay the bridge.
//
// # Graceful Degradation
//
// The server runs without MQTT. The camera endpoints keep working and
// health reports the bridge as disconnected.
package api
