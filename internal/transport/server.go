// Package transport accepts TLS client connections for the daemon and hands
// each one to a connection handler.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"log/slog"

	"spate/internal/logging"
)

// Handler serves one accepted connection until it fails or the context is
// canceled. The server closes the connection after the handler returns.
type Handler func(ctx context.Context, conn net.Conn)

// Server listens for TLS connections on the configured address.
type Server struct {
	listener net.Listener
	handler  Handler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer starts listening on addr. Serve must be called to begin
// accepting.
func NewServer(ctx context.Context, addr string, tlsConfig *tls.Config, handler Handler, logger *slog.Logger) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("transport server requires a handler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		listener: listener,
		handler:  handler,
		logger:   logging.NewComponentLogger(logger, "transport"),
		ctx:      serverCtx,
		cancel:   cancel,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Close. Each connection gets its own
// goroutine running the handler.
func (s *Server) Serve() {
	s.logger.Info("listening", logging.String("address", s.listener.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "transport_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer c.Close()
				s.handler(s.ctx, c)
			}(conn)
		}
	}()
}

// Close stops accepting and waits for in-flight handlers to return.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.wg.Wait()
}
