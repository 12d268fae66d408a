package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davidbz/haku/internal/observability"
)

const cacheTTL = 1 * time.Hour

// Orchestrator coordinates requests to registered capability providers.
// Fan-out kinds (completion, chat, code edit) invoke every registered
// provider concurrently and merge the results; higher-level kinds run a
// single chat round-trip against the first registered chat provider.
//
// Failure policy is strict by design: a dispatch succeeds only if every
// invoked provider succeeds, and fails with the first error reported.
// There is no best-effort partial merge.
type Orchestrator struct {
	registry   ProviderRegistry
	contexts   ContextSource
	events     EventPublisher
	correlator *observability.Correlator
	cache      ResponseCache
}

// NewOrchestrator creates a new orchestrator (DI constructor).
// The cache may be nil, which disables response caching.
func NewOrchestrator(
	registry ProviderRegistry,
	contexts ContextSource,
	events EventPublisher,
	correlator *observability.Correlator,
	cache ResponseCache,
) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		contexts:   contexts,
		events:     events,
		correlator: correlator,
		cache:      cache,
	}
}

// IsEnabled reports whether any provider is registered. Callers can use
// this as a fast-path gate before building dispatch inputs.
func (o *Orchestrator) IsEnabled() bool {
	return o.registry.IsEnabled()
}

// CompleteCode fans a completion query out to every registered
// completion provider and merges the results.
func (o *Orchestrator) CompleteCode(ctx context.Context, query *CompletionQuery) (*CompletionResult, error) {
	if query == nil {
		return nil, errors.New("query cannot be nil")
	}

	return dispatch(ctx, o, KindCodeCompletion, query,
		func(ctx context.Context, provider Provider, aiCtx *AiContext) (*CompletionResult, error) {
			return provider.ProvideCompletion(ctx, query, aiCtx)
		},
		MergeCompletions,
	)
}

// Chat fans a chat message out to every registered chat provider and
// merges the responses.
func (o *Orchestrator) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	if message == "" {
		return nil, errors.New("message cannot be empty")
	}

	return dispatch(ctx, o, KindChat, message,
		func(ctx context.Context, provider Provider, aiCtx *AiContext) (*ChatResponse, error) {
			return provider.ProvideChatResponse(ctx, message, aiCtx)
		},
		MergeChatResponses,
	)
}

// EditCode fans a code edit request out to every registered code edit
// provider and merges the results.
func (o *Orchestrator) EditCode(ctx context.Context, req *CodeEditRequest) (*CodeEditResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	return dispatch(ctx, o, KindCodeEdit, req,
		func(ctx context.Context, provider Provider, aiCtx *AiContext) (*CodeEditResult, error) {
			return provider.ProvideCodeEdit(ctx, req, aiCtx)
		},
		MergeCodeEditResults,
	)
}

// PerformTask runs a higher-level operation (explanation, refactoring,
// bug fix, ...) as a single chat round-trip with response post-parsing.
func (o *Orchestrator) PerformTask(ctx context.Context, req *TaskRequest) (*TaskResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if !req.Kind.IsTask() {
		return nil, fmt.Errorf("capability %s is not a task operation", req.Kind)
	}

	requestID := o.correlator.NextRequestID()
	ctx = observability.WithRequestID(ctx, requestID)
	ctx = observability.WithCapability(ctx, string(req.Kind))
	watch := o.correlator.StartStopwatch()

	providers := o.registry.ProvidersFor(KindChat)
	if len(providers) == 0 {
		err := fmt.Errorf("%w for %s", ErrNoProviders, KindChat)
		o.events.PublishError(ctx, ErrorEvent{RequestID: requestID, Err: err, Operation: string(req.Kind)})
		return nil, err
	}

	// Tasks are single-provider: the first registered chat provider serves them.
	provider := providers[0]
	aiCtx := o.contexts.Get()
	prompt := BuildTaskPrompt(req)

	logger := observability.FromContext(ctx)
	logger.Info("task dispatch started",
		observability.String("provider", provider.ID()))

	reply, err := provider.ProvideChatResponse(observability.WithProvider(ctx, provider.Name()), prompt, &aiCtx)
	if err != nil {
		err = wrapProviderError(provider, req.Kind, err)
		o.events.PublishError(ctx, ErrorEvent{RequestID: requestID, Err: err, Operation: string(req.Kind)})
		return nil, err
	}

	result := ParseTaskReply(reply)
	duration := watch.Elapsed()

	o.events.PublishResponse(ctx, ResponseEvent{
		RequestID: requestID,
		Kind:      req.Kind,
		Result:    result,
		Duration:  duration,
	})

	logger.Info("task dispatch completed",
		observability.Duration("duration", duration))

	return result, nil
}

// dispatch is the shared fan-out path. It allocates a request id, gates
// on registered providers, consults the cache, invokes every provider of
// the kind concurrently with the same input, ambient context, and
// cancellation signal, merges in registration order, and publishes the
// response or error event before returning.
func dispatch[T any](
	ctx context.Context,
	o *Orchestrator,
	kind CapabilityKind,
	input any,
	call func(ctx context.Context, provider Provider, aiCtx *AiContext) (*T, error),
	merge func(results []*T) *T,
) (*T, error) {
	requestID := o.correlator.NextRequestID()
	ctx = observability.WithRequestID(ctx, requestID)
	ctx = observability.WithCapability(ctx, string(kind))
	watch := o.correlator.StartStopwatch()
	logger := observability.FromContext(ctx)

	providers := o.registry.ProvidersFor(kind)
	if len(providers) == 0 {
		err := fmt.Errorf("%w for %s", ErrNoProviders, kind)
		o.events.PublishError(ctx, ErrorEvent{RequestID: requestID, Err: err, Operation: string(kind)})
		return nil, err
	}

	aiCtx := o.contexts.Get()

	key := ""
	if o.cache != nil {
		key = cacheKey(kind, input, aiCtx)
		if cached, ok := cacheLookup[T](ctx, o.cache, key); ok {
			logger.Info("cache hit, skipping provider fan-out")
			o.events.PublishResponse(ctx, ResponseEvent{
				RequestID: requestID,
				Kind:      kind,
				Result:    cached,
				Duration:  watch.Elapsed(),
			})
			return cached, nil
		}
	}

	logger.Info("dispatch started",
		observability.Int("providers", len(providers)))

	// Results are indexed by registration order so the merge never
	// depends on completion order.
	results := make([]*T, len(providers))

	var group errgroup.Group
	for i, provider := range providers {
		i, provider := i, provider
		group.Go(func() error {
			// Each provider receives its own copy of the ambient context.
			callCtx := aiCtx.Clone()

			result, callErr := call(observability.WithProvider(ctx, provider.Name()), provider, &callCtx)
			if callErr != nil {
				return wrapProviderError(provider, kind, callErr)
			}

			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		o.events.PublishError(ctx, ErrorEvent{RequestID: requestID, Err: err, Operation: string(kind)})
		return nil, err
	}

	merged := merge(results)
	duration := watch.Elapsed()

	if o.cache != nil && key != "" {
		cacheStore(ctx, o.cache, key, merged)
	}

	o.events.PublishResponse(ctx, ResponseEvent{
		RequestID: requestID,
		Kind:      kind,
		Result:    merged,
		Duration:  duration,
	})

	logger.Info("dispatch completed",
		observability.Duration("duration", duration))

	return merged, nil
}

// wrapProviderError tags a provider rejection with its origin.
// Cancellation passes through unchanged so callers can detect it with
// errors.Is.
func wrapProviderError(provider Provider, kind CapabilityKind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ProviderError{Provider: provider.ID(), Kind: kind, Err: err}
}

// cacheKey derives the cache identity of a dispatch from its kind,
// input, and ambient context.
func cacheKey(kind CapabilityKind, input any, aiCtx AiContext) string {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return ""
	}

	ctxJSON, err := json.Marshal(aiCtx)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(append(append([]byte(kind), inputJSON...), ctxJSON...))
	return "haku:response:" + hex.EncodeToString(sum[:])
}

func cacheLookup[T any](ctx context.Context, cache ResponseCache, key string) (*T, bool) {
	if key == "" {
		return nil, false
	}

	logger := observability.FromContext(ctx)

	data, err := cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("cache get failed, continuing without cache",
				observability.Error(err))
		}
		return nil, false
	}

	var cached T
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warn("failed to unmarshal cached response",
			observability.Error(err))
		return nil, false
	}

	return &cached, true
}

func cacheStore[T any](ctx context.Context, cache ResponseCache, key string, value *T) {
	logger := observability.FromContext(ctx)

	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("failed to marshal response for cache",
			observability.Error(err))
		return
	}

	if err := cache.Set(ctx, key, data, cacheTTL); err != nil {
		logger.Warn("failed to store response in cache",
			observability.Error(err))
	}
}
