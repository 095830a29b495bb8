// Package client implements the daemon's wire protocol for control tooling
// and tests. Calls are synchronous; events arrive on a callback.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"log/slog"

	"spate/internal/logging"
	"spate/internal/rpc"
	"spate/internal/wire"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("client closed")

// Options configure a connection to the daemon.
type Options struct {
	// Addr is the daemon's host:port.
	Addr string
	// ServerCertFile pins the daemon's certificate. Empty skips
	// verification, which is acceptable only for localhost daemons with
	// generated self-signed certificates.
	ServerCertFile string
	// Compression asks the codec to compress large frames.
	Compression bool
	// DialTimeout bounds the TCP+TLS dial. Zero means 10 seconds.
	DialTimeout time.Duration
	// OnEvent receives pushed events. Called from the read loop, so it
	// must not block.
	OnEvent func(*wire.Event)

	Logger *slog.Logger
}

// Client is one authenticated daemon connection.
type Client struct {
	conn    net.Conn
	codec   *wire.Codec
	logger  *slog.Logger
	onEvent func(*wire.Event)

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *wire.Response
	closed  bool
	readErr error

	done chan struct{}
}

// Dial connects to the daemon and starts the read loop. The connection is
// unauthenticated until Login succeeds.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("daemon address required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	tlsConfig, err := clientTLSConfig(opts.ServerCertFile)
	if err != nil {
		return nil, err
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(dialCtx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}

	c := &Client{
		conn:    conn,
		codec:   wire.NewCodec(conn, wire.WithCompression(opts.Compression)),
		logger:  logging.NewComponentLogger(logger, "client"),
		onEvent: opts.OnEvent,
		pending: make(map[uint64]chan *wire.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func clientTLSConfig(certFile string) (*tls.Config, error) {
	if certFile == "" {
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil
	}
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read server certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", certFile)
	}
	return &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS12}, nil
}

// Call invokes method and waits for its response. A fault in the response
// comes back as an error.
func (c *Client) Call(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *wire.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := &wire.Request{ID: id, Method: method, Args: args, Kwargs: kwargs}
	if err := c.codec.WriteRequest(req); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Fault != nil {
			return nil, rpc.FaultError(resp.Fault)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
}

// Login authenticates the connection and returns the granted level.
func (c *Client) Login(ctx context.Context, username, password string) (int, error) {
	result, err := c.Call(ctx, "daemon.login", []any{username, password}, nil)
	if err != nil {
		return 0, err
	}
	m, ok := result.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("unexpected login result %T", result)
	}
	level, ok := m["level"].(float64)
	if !ok {
		return 0, fmt.Errorf("login result missing level")
	}
	return int(level), nil
}

// Subscribe registers interest in the named events. Pushed events reach the
// OnEvent callback.
func (c *Client) Subscribe(ctx context.Context, names ...string) error {
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	_, err := c.Call(ctx, "daemon.set_event_interest", args, nil)
	return err
}

// Close tears the connection down. In-flight calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		env, err := c.codec.ReadEnvelope()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.closed = true
				c.readErr = fmt.Errorf("connection lost: %w", err)
			}
			c.mu.Unlock()
			return
		}
		switch env.Type {
		case wire.TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[env.Response.ID]
			if ok {
				delete(c.pending, env.Response.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- env.Response
			} else {
				c.logger.Debug("response for unknown request",
					logging.Uint64("request_id", env.Response.ID))
			}
		case wire.TypeEvent:
			if c.onEvent != nil {
				c.onEvent(env.Event)
			}
		default:
			c.logger.Warn("unexpected frame from daemon",
				logging.Int("frame_type", int(env.Type)))
		}
	}
}
