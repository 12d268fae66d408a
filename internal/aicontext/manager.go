// Package aicontext maintains the mutable ambient AI context supplied to
// providers, plus a bounded history of prior snapshots.
package aicontext

import (
	"context"
	"sync"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// HistoryCapacity bounds the number of retained pre-update snapshots.
// The oldest snapshot is evicted first once the capacity is reached.
const HistoryCapacity = 10

// Manager holds the current AI context and its history. A single mutex
// serializes mutation against reads, so a reader never observes a
// partially-applied update or a partially-cleared history.
type Manager struct {
	mu      sync.RWMutex
	current domain.AiContext
	history []domain.AiContext
	events  domain.EventPublisher
}

// NewManager creates a new context manager (DI constructor).
func NewManager(events domain.EventPublisher) *Manager {
	return &Manager{
		mu:      sync.RWMutex{},
		current: domain.AiContext{},
		history: make([]domain.AiContext, 0, HistoryCapacity),
		events:  events,
	}
}

// Get returns a copy of the current context. Callers never observe
// internal mutation through the returned value.
func (m *Manager) Get() domain.AiContext {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current.Clone()
}

// Set overlays the update onto the current context field-wise: facets
// absent from the update keep their prior values. The pre-update
// snapshot is pushed onto history before the mutation, and a
// context-change event carrying the new full context and the applied
// delta is published.
func (m *Manager) Set(ctx context.Context, update domain.AiContext) {
	m.mu.Lock()

	snapshot := m.current.Clone()
	if len(m.history) == HistoryCapacity {
		m.history = m.history[1:]
	}
	m.history = append(m.history, snapshot)

	m.current = domain.Overlay(m.current, update)
	updated := m.current.Clone()

	m.mu.Unlock()

	observability.FromContext(ctx).Debug("ai context updated")

	if m.events != nil {
		m.events.PublishContextChange(ctx, domain.ContextChangedEvent{
			Context: updated,
			Delta:   update.Clone(),
		})
	}
}

// Clear resets the context to empty and discards all history atomically.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.current = domain.AiContext{}
	m.history = m.history[:0]
	m.mu.Unlock()

	observability.FromContext(ctx).Debug("ai context cleared")

	if m.events != nil {
		m.events.PublishContextChange(ctx, domain.ContextChangedEvent{
			Context: domain.AiContext{},
			Delta:   domain.AiContext{},
		})
	}
}

// History returns a copy of the retained snapshots, oldest first. It is
// provided for inspection only and is never consulted by dispatch.
func (m *Manager) History() []domain.AiContext {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make([]domain.AiContext, len(m.history))
	for i, snapshot := range m.history {
		snapshots[i] = snapshot.Clone()
	}

	return snapshots
}
