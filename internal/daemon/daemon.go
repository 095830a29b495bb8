// Package daemon assembles the transport, session, dispatch, event, and
// plugin layers into the running spated process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"spate/internal/auth"
	"spate/internal/config"
	"spate/internal/core"
	"spate/internal/engine"
	"spate/internal/event"
	"spate/internal/logging"
	"spate/internal/plugin"
	"spate/internal/rpc"
	"spate/internal/session"
	"spate/internal/transport"
)

// Daemon owns every subsystem and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock

	engine        engine.Engine
	authenticator *auth.Authenticator
	dispatcher    *rpc.Dispatcher
	events        *event.Manager
	sessions      *session.Manager
	pluginStore   *plugin.Store
	plugins       *plugin.Manager
	service       *core.Service
	server        *transport.Server

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running       bool
	ListenAddr    string
	Sessions      int
	Plugins       []plugin.Record
	LockFilePath  string
	PluginDBPath  string
	EventsDropped uint64
}

// New constructs a daemon with initialized dependencies. Start must be
// called before it serves anything.
func New(cfg *config.Config, eng engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if eng == nil {
		return nil, errors.New("daemon requires an engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	authenticator, err := auth.Open(cfg.AuthFilePath())
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	pluginStore, err := plugin.OpenStore(cfg.PluginDBPath())
	if err != nil {
		return nil, fmt.Errorf("open plugin store: %w", err)
	}

	events := event.NewManager(logger)
	dispatcher := rpc.NewDispatcher(logger, cfg.HandlerTimeout())
	sessions := session.NewManager(session.Options{
		QueueSize:   cfg.Session.OutboundQueueSize,
		IdleTimeout: cfg.IdleTimeout(),
		CloseGrace:  cfg.CloseGrace(),
	}, authenticator, events, logger)
	plugins := plugin.NewManager(dispatcher, events, pluginStore, logger)

	d := &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		lock:          flock.New(filepath.Join(cfg.Paths.DataDir, "spated.lock")),
		engine:        eng,
		authenticator: authenticator,
		dispatcher:    dispatcher,
		events:        events,
		sessions:      sessions,
		pluginStore:   pluginStore,
		plugins:       plugins,
	}
	d.service = core.NewService(eng, sessions, events, plugins, logger, core.Options{
		Shutdown: d.Stop,
	})
	if err := d.service.RegisterAll(dispatcher); err != nil {
		pluginStore.Close()
		return nil, err
	}
	return d, nil
}

// RegisterPlugin announces a bundled plugin. Call before Start so the
// persisted enabled set can be restored.
func (d *Daemon) RegisterPlugin(name string, factory plugin.Factory) error {
	return d.plugins.RegisterFactory(name, factory)
}

// Start acquires the single-instance lock and begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spated instance is already running")
	}

	if err := d.checkListenAddr(); err != nil {
		d.unlock()
		return err
	}

	certFile, keyFile := d.cfg.CertPaths()
	cert, err := transport.LoadOrCreateCertificate(certFile, keyFile)
	if err != nil {
		d.unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	server, err := transport.NewServer(d.ctx, d.cfg.Network.Listen,
		transport.ServerTLSConfig(cert), d.handleConn, d.logger)
	if err != nil {
		d.cancel()
		d.unlock()
		return err
	}
	d.server = server

	d.sessions.Start(d.ctx)
	d.plugins.LoadEnabled(d.ctx)
	server.Serve()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("address", server.Addr().String()),
		logging.String("version", core.Version))
	return nil
}

// Stop shuts everything down in dependency order. Safe to call more than
// once.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.logger.Info("daemon stopping")

	d.cancel()
	d.sessions.CloseAll()
	d.server.Close()
	d.sessions.Wait()
	d.plugins.UnloadAll()
	d.unlock()
	d.logger.Info("daemon stopped")
}

// Close releases resources held since New. Call after Stop.
func (d *Daemon) Close() {
	d.Stop()
	if d.pluginStore != nil {
		if err := d.pluginStore.Close(); err != nil {
			d.logger.Warn("close plugin store", logging.Error(err))
		}
	}
}

// Addr returns the bound listen address once started.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr().String()
}

// Status reports current runtime state.
func (d *Daemon) Status() Status {
	s := Status{
		Running:       d.running.Load(),
		Sessions:      d.sessions.Len(),
		Plugins:       d.plugins.List(),
		LockFilePath:  filepath.Join(d.cfg.Paths.DataDir, "spated.lock"),
		PluginDBPath:  d.pluginStore.Path(),
		EventsDropped: d.events.Dropped(),
	}
	if d.server != nil {
		s.ListenAddr = d.server.Addr().String()
	}
	return s
}

// Done closes when the daemon has begun shutting down.
func (d *Daemon) Done() <-chan struct{} {
	if d.ctx == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.ctx.Done()
}

func (d *Daemon) unlock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
}

// checkListenAddr refuses non-loopback binds unless remote access was opted
// into.
func (d *Daemon) checkListenAddr() error {
	if d.cfg.Network.AllowRemote {
		return nil
	}
	host, _, err := net.SplitHostPort(d.cfg.Network.Listen)
	if err != nil {
		return fmt.Errorf("parse listen address: %w", err)
	}
	if host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1" {
		return nil
	}
	return fmt.Errorf("listen address %q is not loopback; set network.allow_remote to expose the daemon", d.cfg.Network.Listen)
}
