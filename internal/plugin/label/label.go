// Package label is a small bundled plugin that attaches free-form labels
// to jobs. It demonstrates the full plugin surface: registered operations,
// event subscriptions, and published events.
package label

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spate/internal/auth"
	"spate/internal/plugin"
	"spate/internal/rpc"
	"spate/internal/wire"
)

const (
	// PluginName is the name the plugin registers under.
	PluginName = "label"

	pluginVersion = "1.0"
)

// New builds a fresh plugin instance. Use it as the plugin factory.
func New() plugin.Plugin {
	return &Label{labels: make(map[string]string)}
}

// Label maps job ids to a single label each.
type Label struct {
	mu     sync.RWMutex
	labels map[string]string
	host   plugin.Host
}

func (l *Label) Name() string    { return PluginName }
func (l *Label) Version() string { return pluginVersion }

// Enable registers the label operations and starts tracking job removals.
func (l *Label) Enable(host plugin.Host) error {
	l.host = host

	ops := []struct {
		name     string
		handler  rpc.Handler
		minLevel auth.Level
	}{
		{"label.set", l.handleSet, auth.LevelNormal},
		{"label.get", l.handleGet, auth.LevelReadOnly},
		{"label.list", l.handleList, auth.LevelReadOnly},
	}
	for _, op := range ops {
		if err := host.Register(op.name, op.handler, op.minLevel); err != nil {
			return fmt.Errorf("register %s: %w", op.name, err)
		}
	}
	host.SubscribeEvent("job.removed", l.onJobRemoved)
	return nil
}

// Disable clears all state. The host tears down registrations itself.
func (l *Label) Disable() error {
	l.mu.Lock()
	l.labels = make(map[string]string)
	l.mu.Unlock()
	return nil
}

func (l *Label) handleSet(ctx context.Context, call *rpc.Call) (any, error) {
	jobID, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	value, err := call.StringArg(1)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if value == "" {
		delete(l.labels, jobID)
	} else {
		l.labels[jobID] = value
	}
	l.mu.Unlock()

	l.host.Publish(wire.NewEvent("label.changed", map[string]any{
		"job_id": jobID,
		"label":  value,
	}))
	return map[string]any{"job_id": jobID, "label": value}, nil
}

func (l *Label) handleGet(ctx context.Context, call *rpc.Call) (any, error) {
	jobID, err := call.StringArg(0)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	value := l.labels[jobID]
	l.mu.RUnlock()
	return map[string]any{"job_id": jobID, "label": value}, nil
}

func (l *Label) handleList(ctx context.Context, call *rpc.Call) (any, error) {
	l.mu.RLock()
	out := make(map[string]string, len(l.labels))
	for jobID, value := range l.labels {
		out[jobID] = value
	}
	l.mu.RUnlock()

	jobIDs := make([]string, 0, len(out))
	for jobID := range out {
		jobIDs = append(jobIDs, jobID)
	}
	sort.Strings(jobIDs)
	return map[string]any{"labels": out, "job_ids": jobIDs}, nil
}

func (l *Label) onJobRemoved(ev *wire.Event) {
	payload, ok := ev.Payload.(map[string]any)
	if !ok {
		return
	}
	jobID, ok := payload["job_id"].(string)
	if !ok {
		return
	}
	l.mu.Lock()
	delete(l.labels, jobID)
	l.mu.Unlock()
}
