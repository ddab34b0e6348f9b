package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/config"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/logging"
	"github.com/Miraitowa-la/novacloud-core/internal/strategy"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandPublisher dispatches pre-encoded operator commands to devices.
// The MQTT bridge implements it.
type CommandPublisher interface {
	PublishRawCommand(deviceID string, command []byte) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Devices    device.Repository
	Telemetry  telemetry.Repository
	Strategies strategy.Repository
	Commands   CommandPublisher // optional: command/ping return 503 when nil
	Hub        *Hub             // optional: injected when the engine also broadcasts
	Version    string
}

// Server is the operator HTTP API for NovaCloud Core.
//
// It serves device inventory reads, sensor data queries, strategy logs,
// command dispatch, and the WebSocket event stream. Created with New()
// and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	devices    device.Repository
	telemetry  telemetry.Repository
	strategies strategy.Repository
	commands   CommandPublisher
	version    string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Returns an error if a required dependency is missing; the server is
// not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry repository is required")
	}
	if deps.Strategies == nil {
		return nil, fmt.Errorf("strategy repository is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		devices:    deps.Devices,
		telemetry:  deps.Telemetry,
		strategies: deps.Strategies,
		commands:   deps.Commands,
		version:    deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
	}

	return s, nil
}

// Start begins listening for HTTP connections. The listener runs on a
// background goroutine; stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Hub returns the WebSocket hub, creating it if the server has not
// started yet. The composition root uses it to wire broadcasters before
// Start.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Close gracefully shuts down the API server, waiting briefly for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
