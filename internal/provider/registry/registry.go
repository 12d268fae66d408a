package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// Registry implements the domain.ProviderRegistry interface. Providers
// are kept in per-kind insertion-ordered lists; registration order is
// the deterministic tie-break used throughout result merging, so a
// provider is never reordered once registered.
type Registry struct {
	mu     sync.RWMutex
	byKind map[domain.CapabilityKind][]domain.Provider
	byID   map[string]domain.Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:     sync.RWMutex{},
		byKind: make(map[domain.CapabilityKind][]domain.Provider),
		byID:   make(map[string]domain.Provider),
	}
}

// Register adds a provider under the given capability kinds and returns
// the capability to unregister it. Unregistering removes the provider
// from every kind list it was added to, disposes it, and is idempotent.
func (r *Registry) Register(
	ctx context.Context,
	provider domain.Provider,
	kinds []domain.CapabilityKind,
) (domain.UnregisterFunc, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}

	id := provider.ID()
	if id == "" {
		return nil, errors.New("provider id cannot be empty")
	}

	if len(kinds) == 0 {
		return nil, errors.New("at least one capability kind is required")
	}

	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown capability kind: %s", kind)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return nil, fmt.Errorf("provider %s already registered", id)
	}

	r.byID[id] = provider
	for _, kind := range kinds {
		r.byKind[kind] = append(r.byKind[kind], provider)
	}

	logger := observability.FromContext(ctx)
	logger.Info("provider registered",
		observability.String("provider", id),
		observability.Int("kinds", len(kinds)))

	var once sync.Once
	unregister := func() {
		once.Do(func() {
			r.remove(id)

			if err := provider.Dispose(); err != nil {
				logger.Warn("provider dispose failed",
					observability.String("provider", id),
					observability.Error(err))
			}
		})
	}

	return unregister, nil
}

// remove deletes the provider from every kind list. In-flight dispatches
// hold their own snapshot and are not disturbed.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, id)

	for kind, providers := range r.byKind {
		kept := providers[:0]
		for _, p := range providers {
			if p.ID() != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(r.byKind, kind)
			continue
		}
		r.byKind[kind] = kept
	}
}

// ProvidersFor returns a snapshot of the providers registered for the
// kind, in registration order. Mutating the registry afterwards does not
// affect the returned slice.
func (r *Registry) ProvidersFor(kind domain.CapabilityKind) []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.byKind[kind]
	snapshot := make([]domain.Provider, len(providers))
	copy(snapshot, providers)

	return snapshot
}

// IsEnabled reports whether at least one provider of any kind is
// registered.
func (r *Registry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID) > 0
}

// Get retrieves a provider by id.
func (r *Registry) Get(id string) (domain.Provider, error) {
	if id == "" {
		return nil, errors.New("provider id cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", id)
	}

	return provider, nil
}

// List returns the ids of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}

	return ids
}
