package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"spate/internal/auth"
	"spate/internal/event"
	"spate/internal/logging"
	"spate/internal/rpc"
	"spate/internal/wire"
)

var (
	// ErrNotLoaded reports an unload of a plugin that is not loaded. It is
	// informational, not fatal.
	ErrNotLoaded = errors.New("plugin not loaded")
	// ErrUnknownPlugin reports a load of a name with no registered factory.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// Record describes one known plugin for status output.
type Record struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// Manager loads and unloads plugins, scoping every registration they make by
// their own name so unload can undo exactly what load added.
type Manager struct {
	dispatcher *rpc.Dispatcher
	events     *event.Manager
	store      *Store
	logger     *slog.Logger

	mu        sync.Mutex
	factories map[string]Factory
	loaded    map[string]Plugin
}

// NewManager constructs a plugin manager. store may be nil, in which case the
// enabled set is not persisted.
func NewManager(dispatcher *rpc.Dispatcher, events *event.Manager, store *Store, logger *slog.Logger) *Manager {
	return &Manager{
		dispatcher: dispatcher,
		events:     events,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "plugins"),
		factories:  make(map[string]Factory),
		loaded:     make(map[string]Plugin),
	}
}

// RegisterFactory announces an available plugin. It does not load it.
func (m *Manager) RegisterFactory(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register plugin factory: name and factory required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.factories[name]; exists {
		return fmt.Errorf("plugin factory %q already registered", name)
	}
	m.factories[name] = factory
	return nil
}

// Load instantiates and enables the named plugin. If its Enable fails, every
// registration the attempt made is rolled back and the registries are left
// as they were before the call.
func (m *Manager) Load(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, already := m.loaded[name]; already {
		return fmt.Errorf("%w: %s is already loaded", rpc.ErrPluginLoad, name)
	}
	factory, ok := m.factories[name]
	if !ok {
		return fmt.Errorf("%w: %s: %s", rpc.ErrPluginLoad, name, ErrUnknownPlugin)
	}

	p := factory()
	if p.Name() != name {
		return fmt.Errorf("%w: factory for %q built plugin named %q", rpc.ErrPluginLoad, name, p.Name())
	}

	host := &taggedHost{
		tag:        name,
		dispatcher: m.dispatcher,
		events:     m.events,
		logger:     m.logger.With(logging.String(logging.FieldPlugin, name)),
	}
	if err := p.Enable(host); err != nil {
		// Undo the partial registrations the failed attempt made. The tag
		// is unique to this plugin, so a bulk removal is exact.
		m.dispatcher.UnregisterAll(name)
		m.events.UnsubscribeOwner(name)
		return fmt.Errorf("%w: enable %s: %v", rpc.ErrPluginLoad, name, err)
	}

	m.loaded[name] = p
	m.persist(ctx, p, true)
	m.logger.Info("plugin loaded",
		logging.String(logging.FieldPlugin, name),
		logging.String("version", p.Version()))
	return nil
}

// Unload disables and removes the named plugin. A Disable failure is logged
// but never blocks removal; unloading a plugin that is not loaded returns
// ErrNotLoaded without touching anything.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.loaded[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}

	if err := p.Disable(); err != nil {
		m.logger.Warn("plugin disable failed",
			logging.String(logging.FieldPlugin, name),
			logging.Error(err),
			logging.String(logging.FieldEventType, "plugin_disable_failed"),
			logging.String(logging.FieldErrorHint, "registrations are removed regardless"))
	}
	m.dispatcher.UnregisterAll(name)
	m.events.UnsubscribeOwner(name)
	delete(m.loaded, name)
	m.persist(ctx, p, false)
	m.logger.Info("plugin unloaded", logging.String(logging.FieldPlugin, name))
	return nil
}

// Loaded reports whether the named plugin is currently enabled.
func (m *Manager) Loaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[name]
	return ok
}

// List returns every known plugin sorted by name, with its load state.
func (m *Manager) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]Record, 0, len(m.factories))
	for name, factory := range m.factories {
		record := Record{Name: name}
		if p, ok := m.loaded[name]; ok {
			record.Enabled = true
			record.Version = p.Version()
		} else {
			record.Version = factory().Version()
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

// LoadEnabled loads every plugin the store remembers as enabled. Individual
// failures are logged and skipped so one broken plugin cannot hold up daemon
// startup.
func (m *Manager) LoadEnabled(ctx context.Context) {
	if m.store == nil {
		return
	}
	names, err := m.store.Enabled(ctx)
	if err != nil {
		m.logger.Warn("read enabled plugins", logging.Error(err))
		return
	}
	for _, name := range names {
		if err := m.Load(ctx, name); err != nil {
			m.logger.Warn("re-enable plugin",
				logging.String(logging.FieldPlugin, name),
				logging.Error(err))
		}
	}
}

// UnloadAll disables every loaded plugin, typically at shutdown. The
// persisted enabled set is untouched so the plugins come back on restart.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.mu.Lock()
		p, ok := m.loaded[name]
		if !ok {
			m.mu.Unlock()
			continue
		}
		if err := p.Disable(); err != nil {
			m.logger.Warn("plugin disable failed",
				logging.String(logging.FieldPlugin, name),
				logging.Error(err))
		}
		m.dispatcher.UnregisterAll(name)
		m.events.UnsubscribeOwner(name)
		delete(m.loaded, name)
		m.mu.Unlock()
	}
}

func (m *Manager) persist(ctx context.Context, p Plugin, enabled bool) {
	if m.store == nil {
		return
	}
	if err := m.store.SetEnabled(ctx, p.Name(), p.Version(), enabled); err != nil {
		m.logger.Warn("persist plugin state",
			logging.String(logging.FieldPlugin, p.Name()),
			logging.Error(err))
	}
}

// taggedHost scopes registration calls by the owning plugin's name.
type taggedHost struct {
	tag        string
	dispatcher *rpc.Dispatcher
	events     *event.Manager
	logger     *slog.Logger
}

func (h *taggedHost) Register(name string, handler rpc.Handler, minLevel auth.Level) error {
	return h.dispatcher.Register(name, handler, minLevel, h.tag)
}

func (h *taggedHost) SubscribeEvent(name string, fn event.HandlerFunc) {
	h.events.SubscribeFunc(h.tag, name, fn)
}

func (h *taggedHost) Publish(ev *wire.Event) {
	h.events.Publish(ev)
}

func (h *taggedHost) Logger() *slog.Logger {
	return h.logger
}
