// Package testsupport provides shared builders for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"spate/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in unique temp directories, listening
// on an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Network.Listen = "127.0.0.1:0"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Session.HandshakeTimeoutSec = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithQueueSize overrides the per-session outbound event queue size.
func WithQueueSize(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Session.OutboundQueueSize = n
	}
}

// WithHandlerTimeout sets the dispatch handler cap in seconds.
func WithHandlerTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Dispatch.HandlerTimeoutSeconds = seconds
	}
}
