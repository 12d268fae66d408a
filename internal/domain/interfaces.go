package domain

import (
	"context"
	"time"
)

// Provider is an opaque AI capability the core calls through a fixed
// contract. Implementations must treat the supplied context as the only
// cancellation signal and must not assume exclusive access to shared state.
type Provider interface {
	// ID returns the stable provider identity.
	ID() string

	// Name returns the human-readable display name.
	Name() string

	// Capabilities returns the capability kinds this provider declares.
	Capabilities() []CapabilityKind

	// Initialize prepares the provider for use. Called once before the
	// provider is registered.
	Initialize(ctx context.Context) error

	// Dispose releases provider resources. Called by unregistration.
	Dispose() error

	// ProvideCompletion answers a completion query.
	ProvideCompletion(ctx context.Context, query *CompletionQuery, aiCtx *AiContext) (*CompletionResult, error)

	// ProvideChatResponse answers a chat message.
	ProvideChatResponse(ctx context.Context, message string, aiCtx *AiContext) (*ChatResponse, error)

	// ProvideCodeEdit answers a code edit request.
	ProvideCodeEdit(ctx context.Context, req *CodeEditRequest, aiCtx *AiContext) (*CodeEditResult, error)
}

// UnregisterFunc removes a provider from every kind list it was added to
// and disposes it. Calling it more than once is a no-op.
type UnregisterFunc func()

// ProviderRegistry manages the set of active providers per capability kind.
type ProviderRegistry interface {
	// Register adds a provider under the given kinds and returns the
	// capability to unregister it.
	Register(ctx context.Context, provider Provider, kinds []CapabilityKind) (UnregisterFunc, error)

	// ProvidersFor returns a snapshot of the providers registered for the
	// kind, in registration order.
	ProvidersFor(kind CapabilityKind) []Provider

	// IsEnabled reports whether at least one provider of any kind is
	// registered.
	IsEnabled() bool
}

// ContextSource supplies the ambient context attached to every dispatch.
type ContextSource interface {
	// Get returns a copy of the current context.
	Get() AiContext
}

// EventPublisher publishes dispatch and context notifications for
// passive observers.
type EventPublisher interface {
	// PublishResponse announces a successful dispatch.
	PublishResponse(ctx context.Context, event ResponseEvent)

	// PublishError announces a failed dispatch.
	PublishError(ctx context.Context, event ErrorEvent)

	// PublishContextChange announces a context mutation.
	PublishContextChange(ctx context.Context, event ContextChangedEvent)
}

// ResponseCache stores merged dispatch results keyed by request identity.
type ResponseCache interface {
	// Get retrieves a cached entry, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores an entry with a time-to-live.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}
