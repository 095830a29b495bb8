package daemon_test

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"testing"
	"time"

	"spate/internal/auth"
	"spate/internal/client"
	"spate/internal/config"
	"spate/internal/daemon"
	"spate/internal/engine"
	"spate/internal/engine/enginetest"
	"spate/internal/logging"
	"spate/internal/plugin/label"
	"spate/internal/testsupport"
	"spate/internal/wire"
)

type testDaemon struct {
	cfg  *config.Config
	fake *enginetest.Fake
	d    *daemon.Daemon
}

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) *testDaemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	fake := &enginetest.Fake{}

	d, err := daemon.New(cfg, fake, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.RegisterPlugin(label.PluginName, label.New); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Close)
	return &testDaemon{cfg: cfg, fake: fake, d: d}
}

func (td *testDaemon) connect(t *testing.T, onEvent func(*wire.Event)) *client.Client {
	t.Helper()
	certFile, _ := td.cfg.CertPaths()
	c, err := client.Dial(context.Background(), client.Options{
		Addr:           td.d.Addr(),
		ServerCertFile: certFile,
		Compression:    true,
		OnEvent:        onEvent,
	})
	if err != nil {
		t.Fatalf("client.Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (td *testDaemon) loginLocal(t *testing.T, c *client.Client) {
	t.Helper()
	authenticator, err := auth.Open(td.cfg.AuthFilePath())
	if err != nil {
		t.Fatalf("auth.Open: %v", err)
	}
	account, ok := authenticator.LocalCredentials()
	if !ok {
		t.Fatal("no localclient account")
	}
	level, err := c.Login(context.Background(), account.Username, account.Password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if level != int(auth.LevelAdmin) {
		t.Fatalf("login level = %d, want %d", level, auth.LevelAdmin)
	}
}

func TestDaemonJobAddDeliversEvent(t *testing.T) {
	td := startDaemon(t)

	events := make(chan *wire.Event, 4)
	c := td.connect(t, func(ev *wire.Event) { events <- ev })
	td.loginLocal(t, c)

	ctx := context.Background()
	if err := c.Subscribe(ctx, "job.added", "job.status"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	result, err := c.Call(ctx, "job.add", nil, map[string]any{"uri": "magnet:?xt=urn:btih:abc"})
	if err != nil {
		t.Fatalf("job.add: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["job_id"] != "job-1" {
		t.Fatalf("job.add result = %#v", result)
	}

	select {
	case ev := <-events:
		if ev.Name != "job.added" {
			t.Fatalf("event name = %q, want job.added", ev.Name)
		}
		payload := ev.Payload.(map[string]any)
		if payload["job_id"] != "job-1" {
			t.Fatalf("event payload = %#v", ev.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job.added event never delivered")
	}

	td.fake.EmitStatus(engine.StatusChange{JobID: "job-1", State: "downloading"})
	select {
	case ev := <-events:
		if ev.Name != "job.status" {
			t.Fatalf("event name = %q, want job.status", ev.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job.status event never delivered")
	}
}

func TestDaemonDeniesUnauthenticatedCalls(t *testing.T) {
	td := startDaemon(t)
	c := td.connect(t, nil)

	_, err := c.Call(context.Background(), "job.list", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "AuthError") {
		t.Fatalf("unauthenticated job.list error = %v, want AuthError", err)
	}
	if cmds := td.fake.Commands(); len(cmds) != 0 {
		t.Fatalf("engine saw %d commands from unauthenticated caller", len(cmds))
	}
}

func TestDaemonDeniesBelowRequiredLevel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	accounts := "reader:secret:readonly\n"
	if err := os.WriteFile(cfg.AuthFilePath(), []byte(accounts), 0o600); err != nil {
		t.Fatalf("write accounts: %v", err)
	}

	fake := &enginetest.Fake{}
	d, err := daemon.New(cfg, fake, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Close)

	td := &testDaemon{cfg: cfg, fake: fake, d: d}
	c := td.connect(t, nil)
	ctx := context.Background()

	level, err := c.Login(ctx, "reader", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if level != int(auth.LevelReadOnly) {
		t.Fatalf("login level = %d, want %d", level, auth.LevelReadOnly)
	}

	if _, err := c.Call(ctx, "job.add", nil, map[string]any{"uri": "magnet:?a"}); err == nil || !strings.Contains(err.Error(), "AuthError") {
		t.Fatalf("job.add as readonly = %v, want AuthError", err)
	}
	if cmds := fake.Commands(); len(cmds) != 0 {
		t.Fatalf("engine saw %d commands despite denial", len(cmds))
	}

	if _, err := c.Call(ctx, "job.list", nil, nil); err != nil {
		t.Fatalf("job.list as readonly: %v", err)
	}
}

func TestDaemonPluginLifecycle(t *testing.T) {
	td := startDaemon(t)
	c := td.connect(t, nil)
	td.loginLocal(t, c)
	ctx := context.Background()

	if _, err := c.Call(ctx, "plugin.enable", []any{label.PluginName}, nil); err != nil {
		t.Fatalf("plugin.enable: %v", err)
	}
	if _, err := c.Call(ctx, "label.set", []any{"job-1", "archives"}, nil); err != nil {
		t.Fatalf("label.set: %v", err)
	}
	if _, err := c.Call(ctx, "plugin.disable", []any{label.PluginName}, nil); err != nil {
		t.Fatalf("plugin.disable: %v", err)
	}
	_, err := c.Call(ctx, "label.set", []any{"job-1", "archives"}, nil)
	if err == nil || !strings.Contains(err.Error(), "MethodNotFound") {
		t.Fatalf("label.set after disable = %v, want MethodNotFound", err)
	}

	// The session survives the failed call.
	if _, err := c.Call(ctx, "daemon.info", nil, nil); err != nil {
		t.Fatalf("daemon.info after fault: %v", err)
	}
}

func TestDaemonClosesConnectionOnGarbage(t *testing.T) {
	td := startDaemon(t)

	conn, err := tls.Dial("tcp", td.d.Addr(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection still open after protocol violation")
	}
}

func TestDaemonShutdownOperation(t *testing.T) {
	td := startDaemon(t)
	c := td.connect(t, nil)
	td.loginLocal(t, c)

	if _, err := c.Call(context.Background(), "daemon.shutdown", nil, nil); err != nil {
		t.Fatalf("daemon.shutdown: %v", err)
	}
	select {
	case <-td.d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	td := startDaemon(t)

	second, err := daemon.New(td.cfg, &enginetest.Fake{}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want lock failure")
	}
}
