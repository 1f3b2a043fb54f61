package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/limitimer-bridge/internal/journal"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Device is the driver surface the API exposes. *limitimer.Device
// satisfies it.
type Device interface {
	Key() string
	Name() string
	Snapshot() limitimer.Snapshot
	Status() limitimer.ConnectionStatus
	Stats() limitimer.Stats
	IsConnected() bool
	SendAction(ctx context.Context, a limitimer.Action) error
	SendText(ctx context.Context, text string) error
	Resync() error
	Subscribe(fn func(limitimer.Change))
	OnBeep(fn func())
}

// JournalReader lists journal entries. *journal.SQLiteRepository
// satisfies it.
type JournalReader interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Devices []Device

	// Journal is optional. Without it GET /journal answers 503.
	Journal JournalReader

	// Panel is optional. When set it serves every path outside the API
	// and the WebSocket endpoint.
	Panel http.Handler

	Version string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	devices map[string]Device
	order   []string
	journal JournalReader
	panel   http.Handler
	version string
	started time.Time

	hub     *Hub
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies and hooks every
// device into the WebSocket hub.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(deps.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		devices: make(map[string]Device, len(deps.Devices)),
		journal: deps.Journal,
		panel:   deps.Panel,
		version: deps.Version,
		started: time.Now(),
	}
	for _, d := range deps.Devices {
		if _, dup := s.devices[d.Key()]; dup {
			return nil, fmt.Errorf("duplicate device key %q", d.Key())
		}
		s.devices[d.Key()] = d
		s.order = append(s.order, d.Key())
	}

	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.known = func(key string) bool {
		_, ok := s.devices[key]
		return ok
	}
	for _, d := range deps.Devices {
		s.relay(d)
	}
	s.handler = s.buildRouter()

	return s, nil
}

// relay forwards device notifications to WebSocket clients. The hooks run
// on the device's queue worker; Broadcast never blocks.
func (s *Server) relay(d Device) {
	key := d.Key()
	d.Subscribe(func(ch limitimer.Change) {
		s.hub.Broadcast(key, EventFieldChanged, ch)
	})
	d.OnBeep(func() {
		s.hub.Broadcast(key, EventBeep, map[string]string{"device_key": key})
	})
}

// Handler returns the router. Useful for tests and for embedding the API
// in another server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns so a port conflict is reported
// to the caller. Requests are served in a background goroutine until Close.
//
// Parameters:
//   - ctx: Context for the hub lifetime
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening for API: %w", err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
