package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Logger is the minimal logging interface the server needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Authenticator validates device credentials presented on a session's
// first frame.
type Authenticator interface {
	Authenticate(ctx context.Context, deviceID, deviceKey string) (*device.Device, error)
}

// Ingestor is the slice of the telemetry normalizer the server needs.
type Ingestor interface {
	Ingest(ctx context.Context, dev *device.Device, payload map[string]any, ts time.Time) ([]telemetry.SensorData, error)
	UpdateStatus(ctx context.Context, dev *device.Device, status string, ts time.Time) error
	MarkOffline(ctx context.Context, dev *device.Device)
}

// Options configures the TCP device server.
type Options struct {
	// Addr is the listen address, e.g. ":8001".
	Addr string

	// FrameDelimiter terminates each wire frame. Empty means "\n".
	FrameDelimiter string

	// MaxFrameSize bounds the per-connection receive buffer. Zero means
	// the wire package default.
	MaxFrameSize int

	// IdleTimeout is the per-connection read deadline. Zero disables it.
	IdleTimeout time.Duration
}

// Server accepts device connections and runs one session per connection.
//
// Sessions authenticate on their first frame and then feed data and
// status messages into the telemetry normalizer. Server owns the
// listener and connection lifecycles; protocol handling lives in session.
type Server struct {
	opts   Options
	auth   Authenticator
	ingest Ingestor
	logger Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
	running  bool

	wg sync.WaitGroup
}

// NewServer creates a TCP device server.
//
// Parameters:
//   - opts: Listen address and framing limits
//   - auth: Credential check, typically the device registry
//   - ingest: Telemetry normalizer slice for data and status handling
//   - logger: Logger instance (may be nil)
func NewServer(opts Options, auth Authenticator, ingest Ingestor, logger Logger) *Server {
	if opts.FrameDelimiter == "" {
		opts.FrameDelimiter = "\n"
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Server{
		opts:     opts,
		auth:     auth,
		ingest:   ingest,
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

// Start binds the listener and begins accepting connections. It returns
// once the listener is bound; sessions run on their own goroutines.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("binding tcp listener: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("tcp server listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)
	return nil
}

// Addr returns the bound listener address, useful when the configured
// port is 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all active sessions, then waits for the
// session goroutines to finish or the context to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	listener := s.listener
	s.listener = nil

	active := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		active = append(active, sess)
	}
	s.mu.Unlock()

	err := listener.Close()
	for _, sess := range active {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}

	s.logger.Info("tcp server stopped")
	return err
}

// acceptLoop owns the listener it was started with; Stop nils
// s.listener under the mutex, so the loop must not read the field.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		sess := newSession(conn, s.auth, s.ingest, s.logger, sessionOptions{
			delimiter:    []byte(s.opts.FrameDelimiter),
			maxFrameSize: s.opts.MaxFrameSize,
			idleTimeout:  s.opts.IdleTimeout,
		})

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run(ctx)
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
	}
}
