package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"spate/internal/logging"
	"spate/internal/rpc"
	"spate/internal/session"
	"spate/internal/wire"
)

// handleConn serves one client connection for its whole lifetime. Only a
// protocol violation tears the connection down; every other failure becomes
// a fault response on the same session.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	// Shutdown unblocks the read loop by closing the connection.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	opts := []wire.Option{wire.WithCompression(d.cfg.Network.Compression)}
	if d.cfg.Network.MaxFrameBytes > 0 {
		opts = append(opts, wire.WithMaxFrameSize(d.cfg.Network.MaxFrameBytes))
	}
	codec := wire.NewCodec(conn, opts...)

	s := d.sessions.Open(conn, codec)
	defer d.sessions.Close(s)

	// Unauthenticated connections get a bounded window to log in.
	handshake := d.cfg.HandshakeTimeout()
	if handshake > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(handshake))
	}
	d.sessions.BeginAuthentication(s)

	for {
		env, err := codec.ReadEnvelope()
		if err != nil {
			d.logReadFailure(s, err)
			return
		}
		if env.Type != wire.TypeRequest || env.Request == nil {
			d.logger.Warn("non-request frame from client",
				logging.String(logging.FieldSessionID, s.ID()),
				logging.Int("frame_type", int(env.Type)))
			return
		}

		s.Touch()
		username, level := s.Identity()
		resp := d.dispatcher.Dispatch(ctx, rpc.Caller{
			SessionID: s.ID(),
			Username:  username,
			Level:     level,
		}, env.Request)

		if s.State() == session.StateAuthenticated && handshake > 0 {
			_ = conn.SetReadDeadline(time.Time{})
			handshake = 0
		}

		if err := s.SendResponse(resp); err != nil {
			d.logger.Debug("response write failed",
				logging.String(logging.FieldSessionID, s.ID()),
				logging.Error(err))
			return
		}
	}
}

func (d *Daemon) logReadFailure(s *session.Session, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		d.logger.Debug("client disconnected",
			logging.String(logging.FieldSessionID, s.ID()))
	case errors.Is(err, wire.ErrProtocol):
		d.logger.Warn("protocol violation, closing connection",
			logging.String(logging.FieldSessionID, s.ID()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "protocol_violation"))
	default:
		d.logger.Debug("read failed",
			logging.String(logging.FieldSessionID, s.ID()),
			logging.Error(err))
	}
}
