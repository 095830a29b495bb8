package plugin

import (
	"log/slog"

	"spate/internal/auth"
	"spate/internal/event"
	"spate/internal/rpc"
	"spate/internal/wire"
)

// Plugin is the capability interface every extension implements. The manager
// depends on nothing else about a plugin.
type Plugin interface {
	// Name is the owner tag under which all of the plugin's registrations
	// are recorded. It must be unique among loaded plugins.
	Name() string
	// Version is informational, surfaced by plugin.list.
	Version() string
	// Enable is called at load time. The plugin registers its operations
	// and event handlers through host; an error aborts the load and undoes
	// anything already registered.
	Enable(host Host) error
	// Disable is called at unload time, before the plugin's registrations
	// are removed. Failures are logged but never block the unload.
	Disable() error
}

// Factory constructs a fresh plugin instance for each load.
type Factory func() Plugin

// Host is the registration surface handed to Plugin.Enable. Every call is
// tagged with the owning plugin's name so an unload removes exactly what the
// load added.
type Host interface {
	// Register adds a callable operation at the given minimum level.
	Register(name string, handler rpc.Handler, minLevel auth.Level) error
	// SubscribeEvent registers an in-process callback for one event name.
	SubscribeEvent(name string, fn event.HandlerFunc)
	// Publish emits an event into the daemon's fan-out path.
	Publish(ev *wire.Event)
	// Logger returns a logger tagged with the plugin's name.
	Logger() *slog.Logger
}
