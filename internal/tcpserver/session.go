package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
	"github.com/Miraitowa-la/novacloud-core/internal/wire"
)

const readBufferSize = 4096

type sessionOptions struct {
	delimiter    []byte
	maxFrameSize int
	idleTimeout  time.Duration
}

// session is the per-connection protocol state machine.
//
// A session is unauthenticated until its first frame carries valid
// device credentials; every pre-auth frame that is not a valid
// authentication request ends the connection. Once authenticated, data
// and status frames flow into the normalizer and protocol violations
// are answered with error replies without dropping the connection. Only
// framing overflow and authentication failure are fatal.
type session struct {
	conn    net.Conn
	auth    Authenticator
	ingest  Ingestor
	logger  Logger
	opts    sessionOptions
	decoder *wire.Decoder
	encoder *wire.Encoder

	// dev is nil until authentication succeeds.
	dev *device.Device

	closeOnce sync.Once
}

func newSession(conn net.Conn, auth Authenticator, ingest Ingestor, logger Logger, opts sessionOptions) *session {
	return &session{
		conn:    conn,
		auth:    auth,
		ingest:  ingest,
		logger:  logger,
		opts:    opts,
		decoder: wire.NewDecoder(opts.delimiter, opts.maxFrameSize),
		encoder: wire.NewEncoder(opts.delimiter),
	}
}

// run reads the connection until it closes, feeding bytes through the
// frame decoder and dispatching complete frames. On exit the device is
// marked offline if the session ever authenticated.
func (s *session) run(ctx context.Context) {
	defer s.close()
	remote := s.conn.RemoteAddr().String()
	s.logger.Debug("device connected", "remote", remote)

	buf := make([]byte, readBufferSize)
	for {
		if s.opts.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.idleTimeout))
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, feedErr := s.decoder.Feed(buf[:n])
			for _, frame := range frames {
				if !s.handleFrame(ctx, frame) {
					s.finish(ctx, remote)
					return
				}
			}
			if feedErr != nil {
				// Buffer overflow: the peer is not framing properly.
				s.sendError(wire.CodeBufferOverflow, "frame exceeds maximum size")
				s.finish(ctx, remote)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read ended", "remote", remote, "error", err)
			}
			s.finish(ctx, remote)
			return
		}
	}
}

// finish runs the disconnect bookkeeping: authenticated devices go
// offline, unauthenticated ones leave no trace.
func (s *session) finish(ctx context.Context, remote string) {
	if s.dev != nil {
		s.ingest.MarkOffline(ctx, s.dev)
		s.logger.Info("device disconnected", "device_id", s.dev.DeviceID, "remote", remote)
	} else {
		s.logger.Debug("unauthenticated connection closed", "remote", remote)
	}
}

// handleFrame processes one complete frame. It returns false when the
// connection must close.
func (s *session) handleFrame(ctx context.Context, frame []byte) bool {
	msg, err := wire.Decode(frame)
	if err != nil {
		return s.handleDecodeError(err)
	}

	if s.dev == nil {
		return s.handleAuth(ctx, msg)
	}

	switch m := msg.(type) {
	case wire.DataMessage:
		s.handleData(ctx, m)
	case wire.StatusMessage:
		s.handleStatus(ctx, m)
	case wire.AuthRequest:
		// Re-authentication after the handshake is ordinary telemetry
		// whose keys happen to be credentials; no sensor will match.
		s.handleData(ctx, wire.DataMessage{Values: map[string]any{
			"device_id":  m.DeviceID,
			"device_key": m.DeviceKey,
		}})
	}
	return true
}

func (s *session) handleDecodeError(err error) bool {
	switch {
	case errors.Is(err, wire.ErrInvalidJSON):
		s.sendError(wire.CodeInvalidJSON, "invalid JSON")
	case errors.Is(err, wire.ErrUnknownType):
		s.sendError(wire.CodeUnknownType, "unknown message type")
	default:
		s.sendError(wire.CodeInvalidStatus, "invalid message")
	}
	// Pre-auth: any unparseable first frame ends the handshake.
	return s.dev != nil
}

// handleAuth validates the first frame's credentials. Anything other
// than a well-formed, valid authentication request is fatal.
func (s *session) handleAuth(ctx context.Context, msg wire.Message) bool {
	req, ok := msg.(wire.AuthRequest)
	if !ok {
		s.sendError(wire.CodeAuthFailed, "authentication required")
		return false
	}
	if req.DeviceID == "" || req.DeviceKey == "" {
		s.sendError(wire.CodeAuthFailed, "device_id and device_key are required")
		return false
	}

	dev, err := s.auth.Authenticate(ctx, req.DeviceID, req.DeviceKey)
	if err != nil {
		s.logger.Warn("device authentication failed", "device_id", req.DeviceID,
			"remote", s.conn.RemoteAddr().String())
		s.sendError(wire.CodeAuthFailed, "invalid device credentials")
		return false
	}

	s.dev = dev
	s.logger.Info("device authenticated", "device_id", dev.DeviceID,
		"remote", s.conn.RemoteAddr().String())
	s.send(wire.AuthSuccess())
	return true
}

func (s *session) handleData(ctx context.Context, msg wire.DataMessage) {
	ts := time.Now()
	if msg.Timestamp != nil {
		ts = time.Unix(*msg.Timestamp, 0)
	}

	if _, err := s.ingest.Ingest(ctx, s.dev, msg.Values, ts); err != nil {
		s.logger.Error("failed to store device data", "device_id", s.dev.DeviceID, "error", err)
		s.sendError(wire.CodeDataStoreFailed, "failed to store data")
		return
	}
	s.send(wire.DataReceived())
}

func (s *session) handleStatus(ctx context.Context, msg wire.StatusMessage) {
	if err := s.ingest.UpdateStatus(ctx, s.dev, msg.Status, time.Now()); err != nil {
		if errors.Is(err, telemetry.ErrInvalidStatus) {
			s.sendError(wire.CodeInvalidStatus, "invalid status value")
		} else {
			s.logger.Error("failed to update device status", "device_id", s.dev.DeviceID, "error", err)
			s.sendError(wire.CodeInternalError, "failed to update status")
		}
		return
	}
	s.send(wire.StatusUpdated(msg.Status))
}

// send encodes a reply and writes it to the connection. Write failures
// are logged only; the read loop notices a dead peer on its own.
func (s *session) send(v any) {
	frame, err := s.encoder.Encode(v)
	if err != nil {
		s.logger.Error("failed to encode reply", "error", err)
		return
	}
	if _, err := s.conn.Write(frame); err != nil {
		s.logger.Debug("failed to write reply", "error", err)
	}
}

func (s *session) sendError(code, message string) {
	deviceID := ""
	if s.dev != nil {
		deviceID = s.dev.DeviceID
	}
	s.send(wire.NewErrorReply(code, message, deviceID))
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
