package auth_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spate/internal/auth"
)

func TestOpenCreatesLocalAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth")
	a, err := auth.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	account, ok := a.LocalCredentials()
	if !ok {
		t.Fatal("expected generated localclient account")
	}
	if account.Level != auth.LevelAdmin {
		t.Fatalf("localclient level = %s, want admin", account.Level)
	}
	if len(account.Password) != 40 {
		t.Fatalf("expected 40 hex chars of password, got %d", len(account.Password))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat accounts file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("accounts file mode = %o, want 600", perm)
	}
}

func TestAuthenticate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth")
	contents := strings.Join([]string{
		"# comment line",
		"",
		"viewer:secret:readonly",
		"ops:hunter2:admin",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write accounts: %v", err)
	}

	a, err := auth.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	level, err := a.Authenticate("ops", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate ops: %v", err)
	}
	if level != auth.LevelAdmin {
		t.Fatalf("ops level = %s, want admin", level)
	}

	if _, err := a.Authenticate("ops", "wrong"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for wrong password, got %v", err)
	}
	if _, err := a.Authenticate("ghost", "hunter2"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for unknown user, got %v", err)
	}
}

func TestOpenRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth")
	if err := os.WriteFile(path, []byte("justausername\n"), 0o600); err != nil {
		t.Fatalf("write accounts: %v", err)
	}
	if _, err := auth.Open(path); err == nil {
		t.Fatal("expected error for malformed accounts line")
	}
}

func TestParseLevelOrdering(t *testing.T) {
	cases := map[string]auth.Level{
		"none":     auth.LevelNone,
		"readonly": auth.LevelReadOnly,
		"standard": auth.LevelNormal,
		"ADMIN":    auth.LevelAdmin,
	}
	for token, want := range cases {
		got, err := auth.ParseLevel(token)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", token, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", token, got, want)
		}
	}
	if _, err := auth.ParseLevel("root"); err == nil {
		t.Fatal("expected error for unknown level token")
	}

	if !auth.LevelAdmin.Allows(auth.LevelNormal) {
		t.Fatal("admin should satisfy normal")
	}
	if auth.LevelReadOnly.Allows(auth.LevelNormal) {
		t.Fatal("readonly should not satisfy normal")
	}
}
