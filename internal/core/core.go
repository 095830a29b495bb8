// Package core registers the daemon's built-in operations and bridges engine
// status changes onto the event bus.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spate/internal/auth"
	"spate/internal/callctx"
	"spate/internal/engine"
	"spate/internal/event"
	"spate/internal/logging"
	"spate/internal/plugin"
	"spate/internal/rpc"
	"spate/internal/session"
	"spate/internal/wire"
)

// Version is reported by daemon.info.
const Version = "0.1.0"

// Options configure the core service.
type Options struct {
	// Shutdown is invoked asynchronously by daemon.shutdown. Required.
	Shutdown func()
}

// Service implements the built-in daemon and job operations.
type Service struct {
	engine   engine.Engine
	sessions *session.Manager
	events   *event.Manager
	plugins  *plugin.Manager
	logger   *slog.Logger
	shutdown func()
	started  time.Time
}

// NewService wires the built-in operations to their collaborators and starts
// republishing engine status changes as job.status events.
func NewService(eng engine.Engine, sessions *session.Manager, events *event.Manager, plugins *plugin.Manager, logger *slog.Logger, opts Options) *Service {
	s := &Service{
		engine:   eng,
		sessions: sessions,
		events:   events,
		plugins:  plugins,
		logger:   logging.NewComponentLogger(logger, "core"),
		shutdown: opts.Shutdown,
		started:  time.Now(),
	}
	eng.OnStatusChange(func(change engine.StatusChange) {
		s.events.Publish(wire.NewEvent("job.status", map[string]any{
			"job_id": change.JobID,
			"state":  change.State,
			"detail": change.Detail,
		}))
	})
	return s
}

// RegisterAll installs every built-in operation on the dispatcher under the
// core owner tag, which plugin unloads never touch.
func (s *Service) RegisterAll(d *rpc.Dispatcher) error {
	ops := []struct {
		name     string
		handler  rpc.Handler
		minLevel auth.Level
	}{
		{"daemon.login", s.handleLogin, auth.LevelNone},
		{"daemon.info", s.handleInfo, auth.LevelReadOnly},
		{"daemon.set_event_interest", s.handleEventInterest, auth.LevelReadOnly},
		{"daemon.shutdown", s.handleShutdown, auth.LevelAdmin},
		{"job.add", s.handleJobAdd, auth.LevelNormal},
		{"job.remove", s.handleJobRemove, auth.LevelAdmin},
		{"job.pause", s.handleJobPause, auth.LevelNormal},
		{"job.resume", s.handleJobResume, auth.LevelNormal},
		{"job.status", s.handleJobStatus, auth.LevelReadOnly},
		{"job.list", s.handleJobList, auth.LevelReadOnly},
		{"plugin.list", s.handlePluginList, auth.LevelReadOnly},
		{"plugin.enable", s.handlePluginEnable, auth.LevelAdmin},
		{"plugin.disable", s.handlePluginDisable, auth.LevelAdmin},
	}
	for _, op := range ops {
		if err := d.Register(op.name, op.handler, op.minLevel, ""); err != nil {
			return fmt.Errorf("register %s: %w", op.name, err)
		}
	}
	return nil
}

func (s *Service) callerSession(ctx context.Context) (*session.Session, error) {
	id, ok := callctx.SessionIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no session bound to call")
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s is gone", id)
	}
	return sess, nil
}

func (s *Service) handleLogin(ctx context.Context, call *rpc.Call) (any, error) {
	username, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	password, err := call.StringArg(1)
	if err != nil {
		return nil, err
	}
	sess, err := s.callerSession(ctx)
	if err != nil {
		return nil, err
	}
	level, err := s.sessions.Authenticate(sess, username, password)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username": username,
		"level":    int(level),
	}, nil
}

func (s *Service) handleInfo(ctx context.Context, call *rpc.Call) (any, error) {
	return map[string]any{
		"version":        Version,
		"started_at":     s.started.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"sessions":       s.sessions.Len(),
	}, nil
}

func (s *Service) handleEventInterest(ctx context.Context, call *rpc.Call) (any, error) {
	names, err := call.StringArgs()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one event name required")
	}
	sess, err := s.callerSession(ctx)
	if err != nil {
		return nil, err
	}
	s.events.Subscribe(sess, names...)
	return map[string]any{"subscribed": len(names)}, nil
}

func (s *Service) handleShutdown(ctx context.Context, call *rpc.Call) (any, error) {
	username, _ := callctx.UsernameFromContext(ctx)
	s.logger.Info("shutdown requested", logging.String("username", username))
	// The response must still reach the caller, so the stop runs after this
	// handler has returned and the response has been written.
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdown()
	}()
	return "shutting down", nil
}

func (s *Service) handleJobAdd(ctx context.Context, call *rpc.Call) (any, error) {
	result, err := s.engine.Execute(ctx, engine.Command{
		Op:      engine.OpAdd,
		Payload: call.Kwargs,
	})
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]any); ok {
		if jobID, ok := m["job_id"].(string); ok {
			s.events.Publish(wire.NewEvent("job.added", map[string]any{"job_id": jobID}))
		}
	}
	return result, nil
}

func (s *Service) jobCommand(ctx context.Context, call *rpc.Call, op string) (any, error) {
	jobID, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	return s.engine.Execute(ctx, engine.Command{Op: op, JobID: jobID})
}

func (s *Service) handleJobRemove(ctx context.Context, call *rpc.Call) (any, error) {
	result, err := s.jobCommand(ctx, call, engine.OpRemove)
	if err != nil {
		return nil, err
	}
	jobID, _ := call.StringArg(0)
	s.events.Publish(wire.NewEvent("job.removed", map[string]any{"job_id": jobID}))
	return result, nil
}

func (s *Service) handleJobPause(ctx context.Context, call *rpc.Call) (any, error) {
	return s.jobCommand(ctx, call, engine.OpPause)
}

func (s *Service) handleJobResume(ctx context.Context, call *rpc.Call) (any, error) {
	return s.jobCommand(ctx, call, engine.OpResume)
}

func (s *Service) handleJobStatus(ctx context.Context, call *rpc.Call) (any, error) {
	return s.jobCommand(ctx, call, engine.OpStatus)
}

func (s *Service) handleJobList(ctx context.Context, call *rpc.Call) (any, error) {
	return s.engine.Execute(ctx, engine.Command{Op: engine.OpList})
}

func (s *Service) handlePluginList(ctx context.Context, call *rpc.Call) (any, error) {
	return s.plugins.List(), nil
}

func (s *Service) handlePluginEnable(ctx context.Context, call *rpc.Call) (any, error) {
	name, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	if err := s.plugins.Load(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"plugin": name, "enabled": true}, nil
}

func (s *Service) handlePluginDisable(ctx context.Context, call *rpc.Call) (any, error) {
	name, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	if err := s.plugins.Unload(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"plugin": name, "enabled": false}, nil
}
