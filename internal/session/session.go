package session

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"spate/internal/auth"
	"spate/internal/logging"
	"spate/internal/wire"
)

// State tracks a session's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosing
	StateClosed
)

// String returns the lowercase state name used in logs and status output.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the daemon-side object for one live connection. The manager
// owns it exclusively; the dispatcher and event manager only hold references.
type Session struct {
	id     string
	conn   net.Conn
	codec  *wire.Codec
	logger *slog.Logger

	state      atomic.Int32
	lastActive atomic.Int64

	mu       sync.RWMutex
	username string
	level    auth.Level

	outbound chan *wire.Event
	done     chan struct{}
	closing  sync.Once
	writerWG sync.WaitGroup

	dropped atomic.Uint64
}

func newSession(id string, conn net.Conn, codec *wire.Codec, queueSize int, logger *slog.Logger) *Session {
	s := &Session{
		id:       id,
		conn:     conn,
		codec:    codec,
		logger:   logger.With(logging.String(logging.FieldSessionID, id)),
		outbound: make(chan *wire.Event, queueSize),
		done:     make(chan struct{}),
	}
	s.Touch()
	s.writerWG.Add(1)
	go s.writeLoop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Identity returns the authenticated username and level. Before
// authentication the username is empty and the level is LevelNone.
func (s *Session) Identity() (string, auth.Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username, s.level
}

// Level returns the session's authorization level at this instant.
func (s *Session) Level() auth.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

func (s *Session) setIdentity(username string, level auth.Level) {
	s.mu.Lock()
	s.username = username
	s.level = level
	s.mu.Unlock()
}

// Touch records activity for the idle reaper.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// IdleFor returns how long the session has been quiet.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// SendResponse writes a reply directly to the connection. Responses bypass
// the outbound event queue so they are never dropped under event load.
func (s *Session) SendResponse(resp *wire.Response) error {
	return s.codec.WriteResponse(resp)
}

// EnqueueEvent offers an event to the outbound queue without blocking. It
// reports false when the session is closing or the queue is full, in which
// case the event is dropped for this session (drop-newest).
func (s *Session) EnqueueEvent(ev *wire.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbound <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// DroppedEvents returns how many events this session's queue rejected.
func (s *Session) DroppedEvents() uint64 {
	return s.dropped.Load()
}

// close tears the session down. Idempotent; called only via the manager so
// identifier reservation and event unsubscription happen exactly once.
func (s *Session) close() {
	s.closing.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.writerWG.Wait()
		// Discard anything still queued.
		for {
			select {
			case <-s.outbound:
			default:
				s.state.Store(int32(StateClosed))
				return
			}
		}
	})
}

func (s *Session) writeLoop() {
	defer s.writerWG.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.outbound:
			if err := s.codec.WriteEvent(ev); err != nil {
				s.logger.Debug("event write failed", logging.Error(err))
				return
			}
		}
	}
}
