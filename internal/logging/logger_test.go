package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spate/internal/auth"
	"spate/internal/callctx"
	"spate/internal/logging"
)

func TestNewWritesConsoleLine(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "dispatcher")
	logger.Info("call complete", logging.String(logging.FieldMethod, "job.add"), logging.Uint64(logging.FieldRequestID, 9))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "INFO dispatcher: call complete") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "method=job.add") || !strings.Contains(line, "request_id=9") {
		t.Fatalf("missing attrs in line: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsCallFields(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	ctx := callctx.WithSession(context.Background(), "sess-9", "viewer", auth.LevelReadOnly)
	ctx = callctx.WithRequest(ctx, 3, "job.list")
	logging.WithContext(ctx, logger).Info("dispatched")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{"session_id=sess-9", "method=job.list", "request_id=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("nop logger should report disabled")
	}
}
