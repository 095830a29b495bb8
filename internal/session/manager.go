package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"spate/internal/auth"
	"spate/internal/event"
	"spate/internal/logging"
	"spate/internal/wire"
)

// Options configures session policy.
type Options struct {
	// QueueSize bounds each session's outbound event queue.
	QueueSize int
	// IdleTimeout closes sessions quiet for longer than this. Zero disables
	// the reaper.
	IdleTimeout time.Duration
	// CloseGrace is how long a closed session's identifier stays reserved
	// before it may be reused.
	CloseGrace time.Duration
}

// Manager owns every live session. Other components hold session references
// but only the manager creates and destroys them.
type Manager struct {
	opts   Options
	auth   *auth.Authenticator
	events *event.Manager
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	reserved map[string]time.Time

	wg sync.WaitGroup
}

// NewManager constructs a session manager backed by the given authenticator
// and event fan-out.
func NewManager(opts Options, authenticator *auth.Authenticator, events *event.Manager, logger *slog.Logger) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Manager{
		opts:     opts,
		auth:     authenticator,
		events:   events,
		logger:   logging.NewComponentLogger(logger, "sessions"),
		sessions: make(map[string]*Session),
		reserved: make(map[string]time.Time),
	}
}

// Open registers a new session for conn in the Connecting state.
func (m *Manager) Open(conn net.Conn, codec *wire.Codec) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.freshIDLocked()
	s := newSession(id, conn, codec, m.opts.QueueSize, m.logger)
	m.sessions[id] = s
	m.logger.Debug("session opened",
		logging.String(logging.FieldSessionID, id),
		logging.String("remote", s.RemoteAddr()))
	return s
}

// BeginAuthentication moves a connecting session into the Authenticating
// state once the transport handshake has completed.
func (m *Manager) BeginAuthentication(s *Session) {
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticating))
}

// Authenticate validates credentials and, on success, promotes the session
// to Authenticated at the account's level. A session may re-authenticate;
// its level changes only through this path.
func (m *Manager) Authenticate(s *Session, username, password string) (auth.Level, error) {
	if m.auth == nil {
		return auth.LevelNone, fmt.Errorf("no authenticator configured")
	}
	m.BeginAuthentication(s)
	level, err := m.auth.Authenticate(username, password)
	if err != nil {
		return auth.LevelNone, err
	}
	s.setIdentity(username, level)
	s.state.Store(int32(StateAuthenticated))
	s.Touch()
	m.logger.Info("session authenticated",
		logging.String(logging.FieldSessionID, s.ID()),
		logging.String("username", username),
		logging.String("level", level.String()))
	return level, nil
}

// Get returns the live session with the given identifier.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close tears down a session: the outbound queue is discarded, all event
// subscriptions are removed, and the identifier is released for reuse only
// after the grace period. Idempotent and safe from any component.
func (m *Manager) Close(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	if _, ok := m.sessions[s.ID()]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.ID())
	m.reserved[s.ID()] = time.Now().Add(m.opts.CloseGrace)
	m.mu.Unlock()

	if m.events != nil {
		m.events.Drop(s)
	}
	s.close()
	m.logger.Debug("session closed", logging.String(logging.FieldSessionID, s.ID()))
}

// CloseAll closes every live session, typically at daemon shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()
	for _, s := range open {
		m.Close(s)
	}
}

// Start launches the idle reaper. It stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	interval := m.opts.IdleTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapIdle()
				m.releaseReserved()
			}
		}
	}()
}

// Wait blocks until the reaper has exited after Start's context ended.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) reapIdle() {
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.IdleFor() > m.opts.IdleTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()
	for _, s := range idle {
		m.logger.Info("closing idle session",
			logging.String(logging.FieldSessionID, s.ID()),
			logging.Duration("idle", s.IdleFor()))
		m.Close(s)
	}
}

func (m *Manager) releaseReserved() {
	now := time.Now()
	m.mu.Lock()
	for id, until := range m.reserved {
		if now.After(until) {
			delete(m.reserved, id)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) freshIDLocked() string {
	for {
		id := uuid.NewString()
		if _, live := m.sessions[id]; live {
			continue
		}
		if _, held := m.reserved[id]; held {
			continue
		}
		return id
	}
}
