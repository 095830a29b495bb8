package main

import (
	"spate/internal/daemon"
	"spate/internal/plugin/label"
)

// registerPlugins announces every bundled plugin before the daemon restores
// the persisted enabled set.
func registerPlugins(d *daemon.Daemon) error {
	return d.RegisterPlugin(label.PluginName, label.New)
}
