package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/camera"
	"github.com/nerrad567/graycam/internal/control"
	"github.com/nerrad567/graycam/internal/infrastructure/config"
	"github.com/nerrad567/graycam/internal/infrastructure/logging"
	"github.com/nerrad567/graycam/internal/stream"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// FrameServer serves camera frames over HTTP.
type FrameServer interface {
	Stream(ctx context.Context, w stream.ChunkWriter) error
	Snapshot(ctx context.Context, w http.ResponseWriter) error
	Stats() stream.Stats
}

// Connection reports whether the MQTT session is up.
type Connection interface {
	IsConnected() bool
}

// MailboxStats is implemented by *bridge.Mailbox.
type MailboxStats interface {
	Stats() bridge.MailboxStats
}

// PoolStats is implemented by *camera.Pool.
type PoolStats interface {
	Stats() camera.PoolStats
}

// DispatchStats is implemented by *control.Dispatcher.
type DispatchStats interface {
	Stats() control.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Frames is required. The rest are optional and reported as absent.
	Frames     FrameServer
	MQTT       Connection
	Mailbox    MailboxStats
	Pool       PoolStats
	Dispatcher DispatchStats

	// Metrics serves the Prometheus exposition format on /metrics.
	Metrics http.Handler

	// ExternalHub is used instead of an internal hub when set, so the
	// control dispatcher can broadcast into it.
	ExternalHub *Hub

	Base    string
	Version string
}

// Server is the HTTP server for graycam.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	frames     FrameServer
	mqtt       Connection
	mailbox    MailboxStats
	pool       PoolStats
	dispatcher DispatchStats
	metrics    http.Handler
	base       string
	version    string
	startTime  time.Time

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Frames == nil {
		return nil, fmt.Errorf("frame server is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		frames:     deps.Frames,
		mqtt:       deps.MQTT,
		mailbox:    deps.Mailbox,
		pool:       deps.Pool,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		base:       deps.Base,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub, creating it if Start has not run yet.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
// The bind happens synchronously so a port clash is reported here.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	hub := s.Hub()
	if !s.externalHub {
		go hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),

		// Request contexts derive from srvCtx so Close ends open streams.
		BaseContext: func(net.Listener) context.Context { return srvCtx },
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// Cancelling the server context ends open streams at their next frame.
// In-flight requests then get up to 10 seconds to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		s.server.Close() //nolint:errcheck // Forced close after failed graceful shutdown
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
