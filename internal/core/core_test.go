package core_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"spate/internal/auth"
	"spate/internal/core"
	"spate/internal/engine"
	"spate/internal/engine/enginetest"
	"spate/internal/event"
	"spate/internal/logging"
	"spate/internal/plugin"
	"spate/internal/rpc"
	"spate/internal/session"
	"spate/internal/wire"
)

type harness struct {
	fake       *enginetest.Fake
	dispatcher *rpc.Dispatcher
	events     *event.Manager
	sessions   *session.Manager
	auth       *auth.Authenticator
	shutdowns  chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.NewNop()

	authenticator, err := auth.Open(filepath.Join(t.TempDir(), "auth"))
	if err != nil {
		t.Fatalf("auth.Open: %v", err)
	}

	h := &harness{
		fake:       &enginetest.Fake{},
		dispatcher: rpc.NewDispatcher(logger, 0),
		events:     event.NewManager(logger),
		shutdowns:  make(chan struct{}, 1),
	}
	h.auth = authenticator
	h.sessions = session.NewManager(session.Options{
		QueueSize:   16,
		IdleTimeout: time.Hour,
		CloseGrace:  time.Second,
	}, authenticator, h.events, logger)

	plugins := plugin.NewManager(h.dispatcher, h.events, nil, logger)
	service := core.NewService(h.fake, h.sessions, h.events, plugins, logger, core.Options{
		Shutdown: func() { h.shutdowns <- struct{}{} },
	})
	if err := service.RegisterAll(h.dispatcher); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return h
}

// openSession opens a piped session and keeps the client end drained so the
// session writer never stalls.
func (h *harness) openSession(t *testing.T) (*session.Session, *wire.Codec) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	s := h.sessions.Open(serverConn, wire.NewCodec(serverConn))
	clientCodec := wire.NewCodec(clientConn)
	t.Cleanup(func() {
		h.sessions.Close(s)
		clientConn.Close()
	})
	return s, clientCodec
}

func (h *harness) dispatchAs(s *session.Session, level auth.Level, method string, args ...any) *wire.Response {
	caller := rpc.Caller{SessionID: s.ID(), Username: "tester", Level: level}
	return h.dispatcher.Dispatch(context.Background(), caller, &wire.Request{
		ID:     3,
		Method: method,
		Args:   args,
	})
}

func TestLoginPromotesSession(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	account, ok := h.auth.LocalCredentials()
	if !ok {
		t.Fatal("no local account generated")
	}

	resp := h.dispatchAs(s, auth.LevelNone, "daemon.login", account.Username, account.Password)
	if resp.Fault != nil {
		t.Fatalf("daemon.login fault: %+v", resp.Fault)
	}
	if s.State() != session.StateAuthenticated {
		t.Fatalf("session state = %v, want Authenticated", s.State())
	}
	if s.Level() != auth.LevelAdmin {
		t.Fatalf("session level = %v, want admin", s.Level())
	}
	result := resp.Result.(map[string]any)
	if result["level"] != int(auth.LevelAdmin) {
		t.Fatalf("login result level = %v, want %d", result["level"], auth.LevelAdmin)
	}
}

func TestLoginBadCredentialsIsAuthFault(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelNone, "daemon.login", "localclient", "wrong")
	if resp.Fault == nil || resp.Fault.Kind != rpc.FaultAuth {
		t.Fatalf("bad login fault = %+v, want AuthError", resp.Fault)
	}
	if s.State() == session.StateAuthenticated {
		t.Fatal("session authenticated despite bad credentials")
	}
}

func TestJobAddRunsEngineAndPublishes(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	added := make(chan *wire.Event, 1)
	h.events.SubscribeFunc("test", "job.added", func(ev *wire.Event) { added <- ev })

	resp := h.dispatcher.Dispatch(context.Background(), rpc.Caller{
		SessionID: s.ID(), Username: "tester", Level: auth.LevelNormal,
	}, &wire.Request{
		ID:     5,
		Method: "job.add",
		Kwargs: map[string]any{"uri": "magnet:?xt=urn:btih:abc"},
	})
	if resp.Fault != nil {
		t.Fatalf("job.add fault: %+v", resp.Fault)
	}

	cmds := h.fake.CommandsFor(engine.OpAdd)
	if len(cmds) != 1 || cmds[0].Payload["uri"] != "magnet:?xt=urn:btih:abc" {
		t.Fatalf("engine commands = %+v", cmds)
	}

	select {
	case ev := <-added:
		payload := ev.Payload.(map[string]any)
		if payload["job_id"] != "job-1" {
			t.Fatalf("job.added payload = %#v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("job.added never published")
	}
}

func TestJobRemoveDeniedBeforeEngine(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelNormal, "job.remove", "job-1")
	if resp.Fault == nil || resp.Fault.Kind != rpc.FaultAuth {
		t.Fatalf("job.remove as normal = %+v, want AuthError", resp.Fault)
	}
	if cmds := h.fake.Commands(); len(cmds) != 0 {
		t.Fatalf("engine saw %d commands despite denial", len(cmds))
	}
}

func TestJobRemovePublishesRemoval(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	removed := make(chan *wire.Event, 1)
	h.events.SubscribeFunc("test", "job.removed", func(ev *wire.Event) { removed <- ev })

	resp := h.dispatchAs(s, auth.LevelAdmin, "job.remove", "job-9")
	if resp.Fault != nil {
		t.Fatalf("job.remove fault: %+v", resp.Fault)
	}
	select {
	case ev := <-removed:
		if ev.Payload.(map[string]any)["job_id"] != "job-9" {
			t.Fatalf("job.removed payload = %#v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("job.removed never published")
	}
}

func TestEngineStatusChangeRepublished(t *testing.T) {
	h := newHarness(t)

	statuses := make(chan *wire.Event, 1)
	h.events.SubscribeFunc("test", "job.status", func(ev *wire.Event) { statuses <- ev })

	h.fake.EmitStatus(engine.StatusChange{JobID: "job-1", State: "seeding"})

	select {
	case ev := <-statuses:
		payload := ev.Payload.(map[string]any)
		if payload["job_id"] != "job-1" || payload["state"] != "seeding" {
			t.Fatalf("job.status payload = %#v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("job.status never published")
	}
}

func TestEventInterestDeliversToSessionConn(t *testing.T) {
	h := newHarness(t)
	s, clientCodec := h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelReadOnly, "daemon.set_event_interest", "job.status")
	if resp.Fault != nil {
		t.Fatalf("set_event_interest fault: %+v", resp.Fault)
	}

	h.fake.EmitStatus(engine.StatusChange{JobID: "job-2", State: "paused"})

	type read struct {
		env *wire.Envelope
		err error
	}
	got := make(chan read, 1)
	go func() {
		env, err := clientCodec.ReadEnvelope()
		got <- read{env, err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("ReadEnvelope: %v", r.err)
		}
		if r.env.Type != wire.TypeEvent || r.env.Event.Name != "job.status" {
			t.Fatalf("envelope = %+v, want job.status event", r.env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the session connection")
	}
}

func TestShutdownInvokesStopper(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelAdmin, "daemon.shutdown")
	if resp.Fault != nil {
		t.Fatalf("daemon.shutdown fault: %+v", resp.Fault)
	}
	select {
	case <-h.shutdowns:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback never ran")
	}
}

func TestDaemonInfoCountsSessions(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)
	h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelReadOnly, "daemon.info")
	if resp.Fault != nil {
		t.Fatalf("daemon.info fault: %+v", resp.Fault)
	}
	info := resp.Result.(map[string]any)
	if info["version"] != core.Version {
		t.Fatalf("info version = %v", info["version"])
	}
	if info["sessions"] != 2 {
		t.Fatalf("info sessions = %v, want 2", info["sessions"])
	}
}

func TestPluginEnableUnknownIsPluginLoadFault(t *testing.T) {
	h := newHarness(t)
	s, _ := h.openSession(t)

	resp := h.dispatchAs(s, auth.LevelAdmin, "plugin.enable", "ghost")
	if resp.Fault == nil || resp.Fault.Kind != rpc.FaultPluginLoad {
		t.Fatalf("plugin.enable(ghost) fault = %+v, want PluginLoadError", resp.Fault)
	}
}
