package callctx_test

import (
	"context"
	"testing"

	"spate/internal/auth"
	"spate/internal/callctx"
)

func TestSessionRoundTrip(t *testing.T) {
	ctx := callctx.WithSession(context.Background(), "sess-1", "ops", auth.LevelAdmin)

	if id, ok := callctx.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("session id = %q ok=%v", id, ok)
	}
	if name, ok := callctx.UsernameFromContext(ctx); !ok || name != "ops" {
		t.Fatalf("username = %q ok=%v", name, ok)
	}
	if level, ok := callctx.LevelFromContext(ctx); !ok || level != auth.LevelAdmin {
		t.Fatalf("level = %v ok=%v", level, ok)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	ctx := callctx.WithRequest(context.Background(), 42, "job.add")

	if id, ok := callctx.RequestIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("request id = %d ok=%v", id, ok)
	}
	if method, ok := callctx.MethodFromContext(ctx); !ok || method != "job.add" {
		t.Fatalf("method = %q ok=%v", method, ok)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := callctx.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session id on bare context")
	}
	if _, ok := callctx.LevelFromContext(ctx); ok {
		t.Fatal("expected no level on bare context")
	}
	if _, ok := callctx.MethodFromContext(ctx); ok {
		t.Fatal("expected no method on bare context")
	}
}
