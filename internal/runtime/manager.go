// Package runtime implements the per-kind lifecycle manager: load
// configs, start enabled channels, stop them, and expose introspection
// for the admin API.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/stats"
)

// Runnable is the common shape of a translate.Channel, inbound.Channel,
// or outbound.Channel — whichever concrete type a Manager[T] is
// instantiated with.
type Runnable interface {
	Name() string
	Enabled() bool
	SourceDir() string
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// Manager holds one channel kind's configsByName and runningByName
// under a single manager-wide lock, as spec.md §4.7 requires.
type Manager[T Runnable] struct {
	kind  model.ChannelKind
	stats *stats.Store
	bus   *eventbus.Bus

	mu       sync.Mutex
	channels map[string]T
	running  map[string]bool
}

// NewManager builds an empty Manager. bus may be nil: publishing then
// becomes a no-op, matching the event bus's best-effort contract.
func NewManager[T Runnable](kind model.ChannelKind, store *stats.Store, bus *eventbus.Bus) *Manager[T] {
	return &Manager[T]{
		kind:     kind,
		stats:    store,
		bus:      bus,
		channels: map[string]T{},
		running:  map[string]bool{},
	}
}

// LoadAndStart stops everything currently running, replaces the
// configured channel set, then starts every enabled channel. A failure
// starting one channel is isolated and logged; the others proceed.
func (m *Manager[T]) LoadAndStart(ctx context.Context, channels []T) {
	m.StopAll()

	m.mu.Lock()
	m.channels = make(map[string]T, len(channels))
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		m.channels[ch.Name()] = ch
		names = append(names, ch.Name())
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.StartChannel(ctx, name); err != nil {
			slog.Warn("runtime: channel failed to start", "kind", m.kind, "name", name, "err", err)
		}
	}
}

// StartChannel starts the named channel. Starting an already-running
// channel, a disabled channel, or an unknown name is a no-op.
func (m *Manager[T]) StartChannel(ctx context.Context, name string) error {
	m.mu.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if m.running[name] {
		m.mu.Unlock()
		return nil
	}
	if !ch.Enabled() {
		m.mu.Unlock()
		m.publish(name, model.EventDisabled, "")
		return nil
	}
	m.mu.Unlock()

	if err := ch.Start(ctx); err != nil {
		m.publish(name, model.EventBindError, err.Error())
		return err
	}

	m.mu.Lock()
	m.running[name] = true
	m.mu.Unlock()
	m.publish(name, model.EventStarted, "")
	return nil
}

// StopChannel stops the named channel. Stopping an unknown or
// not-running channel is a no-op.
func (m *Manager[T]) StopChannel(name string) {
	m.mu.Lock()
	ch, ok := m.channels[name]
	running := m.running[name]
	m.mu.Unlock()
	if !ok || !running {
		return
	}

	ch.Stop()

	m.mu.Lock()
	delete(m.running, name)
	m.mu.Unlock()
	m.publish(name, model.EventStopped, "")
}

// StopAll stops every running channel, best-effort. It is guaranteed to
// leave runningByName empty.
func (m *Manager[T]) StopAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.StopChannel(name)
	}
}

// GetRunningNames returns the currently running channel names.
func (m *Manager[T]) GetRunningNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.running))
	for name := range m.running {
		out = append(out, name)
	}
	return out
}

// GetAllNames returns every configured channel name, running or not.
func (m *Manager[T]) GetAllNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	return out
}

// IsRunning reports whether name is currently running.
func (m *Manager[T]) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[name]
}

// GetProcessed returns name's processed counter from the stats store.
func (m *Manager[T]) GetProcessed(name string) uint64 {
	return m.stats.Get(name).Processed
}

// GetErrors returns name's errors counter from the stats store.
func (m *Manager[T]) GetErrors(name string) uint64 {
	return m.stats.Get(name).Errors
}

// Snapshot returns the GUI-facing state of every configured channel.
func (m *Manager[T]) Snapshot() []model.ObservableChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ObservableChannelState, 0, len(m.channels))
	for name, ch := range m.channels {
		status := model.StatusStopped
		switch {
		case !ch.Enabled():
			status = model.StatusDisabled
		case m.running[name]:
			status = model.StatusRunning
		}

		rec := m.stats.Get(name)
		out = append(out, model.ObservableChannelState{
			Name:             name,
			Kind:             m.kind,
			Status:           status,
			Processed:        rec.Processed,
			Errors:           rec.Errors,
			InputOrSourceDir: ch.SourceDir(),
		})
	}
	return out
}

func (m *Manager[T]) publish(name string, eventType model.EventType, detail string) {
	if err := m.bus.PublishChannelEvent(context.Background(), m.kind, name, eventType, detail); err != nil {
		slog.Warn("runtime: event publish failed", "kind", m.kind, "name", name, "err", err)
	}
}
