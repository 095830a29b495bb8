// Package event fans published events out to subscribed sessions and to
// handler callbacks registered by plugins.
//
// Delivery is best-effort: a subscriber whose outbound queue is full has the
// event dropped for it alone, and a slow subscriber never delays the
// publisher or other subscribers. Per subscriber, events arrive in publish
// order.
package event

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"spate/internal/logging"
	"spate/internal/wire"
)

// Subscriber receives events matching its filters. EnqueueEvent must not
// block; it reports false when the event was dropped.
type Subscriber interface {
	ID() string
	EnqueueEvent(*wire.Event) bool
}

// HandlerFunc is an in-process event callback registered under an owner tag.
type HandlerFunc func(*wire.Event)

type handlerEntry struct {
	owner string
	fn    HandlerFunc
}

// Manager is the fan-out path between internal state changes and interested
// sessions.
type Manager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscription  // keyed by Subscriber.ID
	handlers    map[string][]handlerEntry // keyed by event name

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscription struct {
	sub   Subscriber
	names map[string]struct{}
}

// NewManager constructs an empty fan-out table.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:      logging.NewComponentLogger(logger, "events"),
		subscribers: make(map[string]*subscription),
		handlers:    make(map[string][]handlerEntry),
	}
}

// Subscribe adds event names to sub's filter set, creating the subscription
// on first use. Names are matched exactly.
func (m *Manager) Subscribe(sub Subscriber, names ...string) {
	if sub == nil || len(names) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.subscribers[sub.ID()]
	if !ok {
		entry = &subscription{sub: sub, names: make(map[string]struct{})}
		m.subscribers[sub.ID()] = entry
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		entry.names[name] = struct{}{}
	}
}

// Unsubscribe removes event names from sub's filter set. An emptied
// subscription is discarded.
func (m *Manager) Unsubscribe(sub Subscriber, names ...string) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.subscribers[sub.ID()]
	if !ok {
		return
	}
	for _, name := range names {
		delete(entry.names, name)
	}
	if len(entry.names) == 0 {
		delete(m.subscribers, sub.ID())
	}
}

// Drop removes sub entirely. Safe to call for unknown subscribers.
func (m *Manager) Drop(sub Subscriber) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	delete(m.subscribers, sub.ID())
	m.mu.Unlock()
}

// SubscribeFunc registers an in-process callback for one event name under an
// owner tag, so UnsubscribeOwner can remove it precisely.
func (m *Manager) SubscribeFunc(owner, name string, fn HandlerFunc) {
	if name == "" || fn == nil {
		return
	}
	m.mu.Lock()
	m.handlers[name] = append(m.handlers[name], handlerEntry{owner: owner, fn: fn})
	m.mu.Unlock()
}

// UnsubscribeOwner removes every callback registered under the owner tag and
// returns how many were removed.
func (m *Manager) UnsubscribeOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for name, entries := range m.handlers {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.owner == owner {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(m.handlers, name)
		} else {
			m.handlers[name] = kept
		}
	}
	return removed
}

// Publish delivers ev to every matching subscriber and callback. It never
// blocks on a subscriber; a full queue or closed session drops the event for
// that subscriber only.
func (m *Manager) Publish(ev *wire.Event) {
	if ev == nil || ev.Name == "" {
		return
	}
	m.published.Add(1)

	m.mu.RLock()
	targets := make([]Subscriber, 0, len(m.subscribers))
	for _, entry := range m.subscribers {
		if _, ok := entry.names[ev.Name]; ok {
			targets = append(targets, entry.sub)
		}
	}
	callbacks := make([]handlerEntry, len(m.handlers[ev.Name]))
	copy(callbacks, m.handlers[ev.Name])
	m.mu.RUnlock()

	for _, sub := range targets {
		if !sub.EnqueueEvent(ev) {
			m.dropped.Add(1)
			m.logger.Debug("event dropped",
				logging.String(logging.FieldEvent, ev.Name),
				logging.String(logging.FieldSessionID, sub.ID()))
		}
	}
	for _, entry := range callbacks {
		m.invoke(entry, ev)
	}
}

// Published returns the total number of publish calls.
func (m *Manager) Published() uint64 { return m.published.Load() }

// Dropped returns how many per-subscriber deliveries were discarded.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

func (m *Manager) invoke(entry handlerEntry, ev *wire.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panic",
				logging.String(logging.FieldEvent, ev.Name),
				logging.String(logging.FieldPlugin, entry.owner),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
		}
	}()
	entry.fn(ev)
}
