package config

const (
	defaultListen              = "127.0.0.1:58846"
	defaultMaxFrameBytes       = 4 * 1024 * 1024
	defaultDataDir             = "~/.local/share/spate"
	defaultIdleTimeoutSeconds  = 3600
	defaultOutboundQueueSize   = 256
	defaultCloseGraceSeconds   = 5
	defaultHandshakeSeconds    = 30
	defaultHandlerTimeoutSecs  = 0
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultCompressionEnabled  = true
	defaultAllowRemoteSessions = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Network: Network{
			Listen:        defaultListen,
			AllowRemote:   defaultAllowRemoteSessions,
			MaxFrameBytes: defaultMaxFrameBytes,
			Compression:   defaultCompressionEnabled,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Session: Session{
			IdleTimeoutSeconds:  defaultIdleTimeoutSeconds,
			OutboundQueueSize:   defaultOutboundQueueSize,
			CloseGraceSeconds:   defaultCloseGraceSeconds,
			HandshakeTimeoutSec: defaultHandshakeSeconds,
		},
		Dispatch: Dispatch{
			HandlerTimeoutSeconds: defaultHandlerTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
