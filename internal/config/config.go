package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Network contains the listener configuration.
type Network struct {
	Listen        string `toml:"listen"`
	AllowRemote   bool   `toml:"allow_remote"`
	MaxFrameBytes int    `toml:"max_frame_bytes"`
	Compression   bool   `toml:"compression"`
}

// TLS contains certificate configuration. Empty paths mean a self-signed
// pair is generated under the data directory on first start.
type TLS struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Session contains per-connection policy.
type Session struct {
	IdleTimeoutSeconds  int `toml:"idle_timeout_seconds"`
	OutboundQueueSize   int `toml:"outbound_queue_size"`
	CloseGraceSeconds   int `toml:"close_grace_seconds"`
	HandshakeTimeoutSec int `toml:"handshake_timeout_seconds"`
}

// Dispatch contains handler invocation policy.
type Dispatch struct {
	// HandlerTimeoutSeconds caps one handler invocation. Zero disables the
	// cap. A handler exceeding it yields a Timeout fault while the work
	// finishes in the background and its result is discarded.
	HandlerTimeoutSeconds int `toml:"handler_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the complete daemon configuration.
type Config struct {
	Network  Network  `toml:"network"`
	TLS      TLS      `toml:"tls"`
	Paths    Paths    `toml:"paths"`
	Session  Session  `toml:"session"`
	Dispatch Dispatch `toml:"dispatch"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the user-level config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "spate", "config.toml"), nil
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields defaults. Returns the config, the resolved path, and
// whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath := strings.TrimSpace(path)
	if resolvedPath == "" {
		var err error
		resolvedPath, err = DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
	}
	resolvedPath = expandHome(resolvedPath)

	exists := false
	if _, err := os.Stat(resolvedPath); err == nil {
		exists = true
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", false, fmt.Errorf("stat config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the annotated sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	path = expandHome(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Network.Listen) == "" {
		return errors.New("network.listen must be set")
	}
	if c.Network.MaxFrameBytes <= 0 {
		return errors.New("network.max_frame_bytes must be positive")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Session.OutboundQueueSize <= 0 {
		return errors.New("session.outbound_queue_size must be positive")
	}
	if c.Session.IdleTimeoutSeconds < 0 {
		return errors.New("session.idle_timeout_seconds must not be negative")
	}
	if c.Dispatch.HandlerTimeoutSeconds < 0 {
		return errors.New("dispatch.handler_timeout_seconds must not be negative")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AuthFilePath returns the accounts file location within the data directory.
func (c *Config) AuthFilePath() string {
	return filepath.Join(c.Paths.DataDir, "auth")
}

// PluginDBPath returns the plugin state database location.
func (c *Config) PluginDBPath() string {
	return filepath.Join(c.Paths.DataDir, "plugins.db")
}

// CertPaths returns the TLS certificate and key locations, falling back to
// the generated pair under the data directory.
func (c *Config) CertPaths() (certFile, keyFile string) {
	if c.TLS.CertFile != "" {
		return c.TLS.CertFile, c.TLS.KeyFile
	}
	sslDir := filepath.Join(c.Paths.DataDir, "ssl")
	return filepath.Join(sslDir, "daemon.crt"), filepath.Join(sslDir, "daemon.key")
}

// IdleTimeout returns the session idle timeout, zero meaning disabled.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns how long an unauthenticated connection may linger.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Session.HandshakeTimeoutSec) * time.Second
}

// CloseGrace returns how long a closed session's identifier stays reserved.
func (c *Config) CloseGrace() time.Duration {
	return time.Duration(c.Session.CloseGraceSeconds) * time.Second
}

// HandlerTimeout returns the per-call handler cap, zero meaning disabled.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Dispatch.HandlerTimeoutSeconds) * time.Second
}

func (c *Config) normalize() error {
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.LogDir = expandHome(c.Paths.LogDir)
	c.TLS.CertFile = expandHome(c.TLS.CertFile)
	c.TLS.KeyFile = expandHome(c.TLS.KeyFile)
	if c.Paths.LogDir == "" && c.Paths.DataDir != "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
