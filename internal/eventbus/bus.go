// Package eventbus provides the typed publish/subscribe surface for
// response, error, and context-change notifications.
package eventbus

import (
	"context"
	"sync"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// ResponseHandler observes successful dispatches.
type ResponseHandler func(ctx context.Context, event domain.ResponseEvent)

// ErrorHandler observes failed dispatches.
type ErrorHandler func(ctx context.Context, event domain.ErrorEvent)

// ContextChangeHandler observes ambient context mutations.
type ContextChangeHandler func(ctx context.Context, event domain.ContextChangedEvent)

// Subscription detaches a handler from the bus. Calling it more than
// once is a no-op.
type Subscription func()

// Bus implements the domain.EventPublisher interface. Delivery is
// synchronous and in subscription order: a publish call returns only
// after every handler has run, so an event is always emitted no later
// than the dispatch result reaches its caller. Observers must not
// assume they run strictly before or after the caller's continuation.
type Bus struct {
	mu             sync.RWMutex
	nextID         int
	responses      map[int]ResponseHandler
	responseOrder  []int
	errors         map[int]ErrorHandler
	errorOrder     []int
	contextChanges map[int]ContextChangeHandler
	contextOrder   []int
}

// NewBus creates a new event bus (DI constructor).
func NewBus() *Bus {
	return &Bus{
		responses:      make(map[int]ResponseHandler),
		errors:         make(map[int]ErrorHandler),
		contextChanges: make(map[int]ContextChangeHandler),
	}
}

// SubscribeResponse attaches a handler for response events.
func (b *Bus) SubscribeResponse(handler ResponseHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.responses[id] = handler
	b.responseOrder = append(b.responseOrder, id)

	return b.unsubscriber(func() {
		delete(b.responses, id)
		b.responseOrder = removeID(b.responseOrder, id)
	})
}

// SubscribeError attaches a handler for error events.
func (b *Bus) SubscribeError(handler ErrorHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.errors[id] = handler
	b.errorOrder = append(b.errorOrder, id)

	return b.unsubscriber(func() {
		delete(b.errors, id)
		b.errorOrder = removeID(b.errorOrder, id)
	})
}

// SubscribeContextChange attaches a handler for context-change events.
func (b *Bus) SubscribeContextChange(handler ContextChangeHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.contextChanges[id] = handler
	b.contextOrder = append(b.contextOrder, id)

	return b.unsubscriber(func() {
		delete(b.contextChanges, id)
		b.contextOrder = removeID(b.contextOrder, id)
	})
}

// PublishResponse announces a successful dispatch to all subscribers.
func (b *Bus) PublishResponse(ctx context.Context, event domain.ResponseEvent) {
	observability.FromContext(ctx).Debug("publishing response event",
		observability.String("event_request_id", event.RequestID),
		observability.Duration("duration", event.Duration))

	for _, handler := range b.responseHandlers() {
		handler(ctx, event)
	}
}

// PublishError announces a failed dispatch to all subscribers.
func (b *Bus) PublishError(ctx context.Context, event domain.ErrorEvent) {
	observability.FromContext(ctx).Debug("publishing error event",
		observability.String("event_request_id", event.RequestID),
		observability.String("operation", event.Operation),
		observability.Error(event.Err))

	for _, handler := range b.errorHandlers() {
		handler(ctx, event)
	}
}

// PublishContextChange announces a context mutation to all subscribers.
func (b *Bus) PublishContextChange(ctx context.Context, event domain.ContextChangedEvent) {
	observability.FromContext(ctx).Debug("publishing context-change event")

	for _, handler := range b.contextChangeHandlers() {
		handler(ctx, event)
	}
}

// unsubscriber wraps removal so a subscription can be released at most
// once. Callers hold no lock; the returned function takes it.
func (b *Bus) unsubscriber(remove func()) Subscription {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			remove()
		})
	}
}

// responseHandlers snapshots handlers in subscription order, so a
// handler that unsubscribes during delivery cannot tear the iteration.
func (b *Bus) responseHandlers() []ResponseHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]ResponseHandler, 0, len(b.responseOrder))
	for _, id := range b.responseOrder {
		handlers = append(handlers, b.responses[id])
	}
	return handlers
}

func (b *Bus) errorHandlers() []ErrorHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]ErrorHandler, 0, len(b.errorOrder))
	for _, id := range b.errorOrder {
		handlers = append(handlers, b.errors[id])
	}
	return handlers
}

func (b *Bus) contextChangeHandlers() []ContextChangeHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]ContextChangeHandler, 0, len(b.contextOrder))
	for _, id := range b.contextOrder {
		handlers = append(handlers, b.contextChanges[id])
	}
	return handlers
}

// removeID drops id from the order slice, preserving order.
func removeID(order []int, id int) []int {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
