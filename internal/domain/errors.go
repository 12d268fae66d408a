package domain

import (
	"errors"
	"fmt"
)

// ErrNoProviders indicates a dispatch targeted a capability kind with no
// registered providers. Reported immediately, before any provider call.
var ErrNoProviders = errors.New("no providers registered")

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// ProviderError wraps a provider call rejection. A dispatch fails with
// the first provider error reported under concurrent completion; results
// from providers that had already succeeded are discarded.
type ProviderError struct {
	Provider string
	Kind     CapabilityKind
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed for %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes the underlying provider error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
