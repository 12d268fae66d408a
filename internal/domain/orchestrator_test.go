package domain_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// mockProvider is a mock implementation of domain.Provider for testing.
type mockProvider struct {
	id             string
	completionFunc func(ctx context.Context, query *domain.CompletionQuery, aiCtx *domain.AiContext) (*domain.CompletionResult, error)
	chatFunc       func(ctx context.Context, message string, aiCtx *domain.AiContext) (*domain.ChatResponse, error)
	editFunc       func(ctx context.Context, req *domain.CodeEditRequest, aiCtx *domain.AiContext) (*domain.CodeEditResult, error)
	calls          atomic.Int64
}

func (m *mockProvider) ID() string   { return m.id }
func (m *mockProvider) Name() string { return m.id }

func (m *mockProvider) Capabilities() []domain.CapabilityKind {
	return []domain.CapabilityKind{domain.KindCodeCompletion, domain.KindChat, domain.KindCodeEdit}
}

func (m *mockProvider) Initialize(_ context.Context) error { return nil }
func (m *mockProvider) Dispose() error                     { return nil }

func (m *mockProvider) ProvideCompletion(
	ctx context.Context,
	query *domain.CompletionQuery,
	aiCtx *domain.AiContext,
) (*domain.CompletionResult, error) {
	m.calls.Add(1)
	if m.completionFunc != nil {
		return m.completionFunc(ctx, query, aiCtx)
	}
	return &domain.CompletionResult{}, nil
}

func (m *mockProvider) ProvideChatResponse(
	ctx context.Context,
	message string,
	aiCtx *domain.AiContext,
) (*domain.ChatResponse, error) {
	m.calls.Add(1)
	if m.chatFunc != nil {
		return m.chatFunc(ctx, message, aiCtx)
	}
	return &domain.ChatResponse{Message: "ok"}, nil
}

func (m *mockProvider) ProvideCodeEdit(
	ctx context.Context,
	req *domain.CodeEditRequest,
	aiCtx *domain.AiContext,
) (*domain.CodeEditResult, error) {
	m.calls.Add(1)
	if m.editFunc != nil {
		return m.editFunc(ctx, req, aiCtx)
	}
	return &domain.CodeEditResult{}, nil
}

// mockRegistry is a mock implementation of domain.ProviderRegistry.
type mockRegistry struct {
	providers map[domain.CapabilityKind][]domain.Provider
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{providers: make(map[domain.CapabilityKind][]domain.Provider)}
}

func (m *mockRegistry) add(provider domain.Provider, kinds ...domain.CapabilityKind) {
	for _, kind := range kinds {
		m.providers[kind] = append(m.providers[kind], provider)
	}
}

func (m *mockRegistry) Register(
	_ context.Context,
	provider domain.Provider,
	kinds []domain.CapabilityKind,
) (domain.UnregisterFunc, error) {
	m.add(provider, kinds...)
	return func() {}, nil
}

func (m *mockRegistry) ProvidersFor(kind domain.CapabilityKind) []domain.Provider {
	return m.providers[kind]
}

func (m *mockRegistry) IsEnabled() bool {
	return len(m.providers) > 0
}

// mockContexts is a fixed ContextSource.
type mockContexts struct {
	current domain.AiContext
}

func (m *mockContexts) Get() domain.AiContext {
	return m.current.Clone()
}

// recordingBus captures published events.
type recordingBus struct {
	mu        sync.Mutex
	responses []domain.ResponseEvent
	errors    []domain.ErrorEvent
	changes   []domain.ContextChangedEvent
}

func (b *recordingBus) PublishResponse(_ context.Context, event domain.ResponseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, event)
}

func (b *recordingBus) PublishError(_ context.Context, event domain.ErrorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, event)
}

func (b *recordingBus) PublishContextChange(_ context.Context, event domain.ContextChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, event)
}

// mockCache is an in-memory ResponseCache.
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return data, nil
}

func (c *mockCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	c.sets++
	return nil
}

func newOrchestrator(
	reg domain.ProviderRegistry,
	bus *recordingBus,
	cache domain.ResponseCache,
) *domain.Orchestrator {
	return domain.NewOrchestrator(reg, &mockContexts{}, bus, observability.NewCorrelator(), cache)
}

func TestOrchestrator_CompleteCode(t *testing.T) {
	t.Run("should fail with ErrNoProviders without invoking anyone", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}
		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.CompleteCode(context.Background(), &domain.CompletionQuery{Prefix: "fo"})

		require.ErrorIs(t, err, domain.ErrNoProviders)
		require.Nil(t, result)
		require.Len(t, bus.errors, 1)
		require.Empty(t, bus.responses)
	})

	t.Run("should merge results across providers in registration order", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		slow := &mockProvider{
			id: "slow",
			completionFunc: func(_ context.Context, q *domain.CompletionQuery, _ *domain.AiContext) (*domain.CompletionResult, error) {
				time.Sleep(20 * time.Millisecond) // finishes after "fast"
				return &domain.CompletionResult{Items: []domain.Completion{
					completionAt("X", 1, 0.9),
				}}, nil
			},
		}
		fast := &mockProvider{
			id: "fast",
			completionFunc: func(_ context.Context, q *domain.CompletionQuery, _ *domain.AiContext) (*domain.CompletionResult, error) {
				return &domain.CompletionResult{Items: []domain.Completion{
					completionAt("Y", 2, 0.9),
				}}, nil
			},
		}
		reg.add(slow, domain.KindCodeCompletion)
		reg.add(fast, domain.KindCodeCompletion)

		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.CompleteCode(context.Background(), &domain.CompletionQuery{Prefix: "fo"})

		require.NoError(t, err)
		// Registration order, not completion order, breaks the tie.
		require.Equal(t, "X", result.Items[0].Text)
		require.Equal(t, "Y", result.Items[1].Text)
	})

	t.Run("should publish a response event no later than returning", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}
		reg.add(&mockProvider{id: "p1"}, domain.KindCodeCompletion)

		orch := newOrchestrator(reg, bus, nil)

		_, err := orch.CompleteCode(context.Background(), &domain.CompletionQuery{Prefix: "fo"})

		require.NoError(t, err)
		require.Len(t, bus.responses, 1)
		require.NotEmpty(t, bus.responses[0].RequestID)
		require.Equal(t, domain.KindCodeCompletion, bus.responses[0].Kind)
		require.GreaterOrEqual(t, bus.responses[0].Duration, time.Duration(0))
	})

	t.Run("should allocate distinct request ids per dispatch", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}
		reg.add(&mockProvider{id: "p1"}, domain.KindCodeCompletion)

		orch := newOrchestrator(reg, bus, nil)

		_, err := orch.CompleteCode(context.Background(), &domain.CompletionQuery{Prefix: "a"})
		require.NoError(t, err)
		_, err = orch.CompleteCode(context.Background(), &domain.CompletionQuery{Prefix: "b"})
		require.NoError(t, err)

		require.Len(t, bus.responses, 2)
		require.NotEqual(t, bus.responses[0].RequestID, bus.responses[1].RequestID)
	})

	t.Run("should return error when query is nil", func(t *testing.T) {
		orch := newOrchestrator(newMockRegistry(), &recordingBus{}, nil)

		_, err := orch.CompleteCode(context.Background(), nil)

		require.Error(t, err)
		require.Contains(t, err.Error(), "query cannot be nil")
	})
}

func TestOrchestrator_Chat(t *testing.T) {
	t.Run("should merge chat responses per the documented rules", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		p1 := &mockProvider{
			id: "p1",
			chatFunc: func(_ context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				return &domain.ChatResponse{Message: "Hi", Suggestions: []string{"a", "b"}}, nil
			},
		}
		p2 := &mockProvider{
			id: "p2",
			chatFunc: func(_ context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				return &domain.ChatResponse{Message: "Hello", Suggestions: []string{"b", "c"}}, nil
			},
		}
		reg.add(p1, domain.KindChat)
		reg.add(p2, domain.KindChat)

		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.Chat(context.Background(), "hey")

		require.NoError(t, err)
		require.Equal(t, "Hi", result.Message)
		require.Equal(t, []string{"a", "b", "c"}, result.Suggestions)
	})

	t.Run("should fail the whole dispatch when any provider fails", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		failing := &mockProvider{
			id: "failing",
			chatFunc: func(_ context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				return nil, errors.New("upstream exploded")
			},
		}
		healthy := &mockProvider{
			id: "healthy",
			chatFunc: func(_ context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				return &domain.ChatResponse{Message: "fine"}, nil
			},
		}
		reg.add(failing, domain.KindChat)
		reg.add(healthy, domain.KindChat)

		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.Chat(context.Background(), "hey")

		require.Error(t, err)
		require.Nil(t, result)

		var providerErr *domain.ProviderError
		require.ErrorAs(t, err, &providerErr)
		require.Equal(t, "failing", providerErr.Provider)

		require.Len(t, bus.errors, 1)
		require.Equal(t, string(domain.KindChat), bus.errors[0].Operation)
	})

	t.Run("should surface cancellation unchanged", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		blocked := &mockProvider{
			id: "blocked",
			chatFunc: func(ctx context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		reg.add(blocked, domain.KindChat)

		orch := newOrchestrator(reg, bus, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := orch.Chat(ctx, "hey")

		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("should return cached merged response without fan-out", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}
		cache := newMockCache()

		provider := &mockProvider{
			id: "p1",
			chatFunc: func(_ context.Context, _ string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				return &domain.ChatResponse{Message: "fresh"}, nil
			},
		}
		reg.add(provider, domain.KindChat)

		orch := newOrchestrator(reg, bus, cache)

		first, err := orch.Chat(context.Background(), "hey")
		require.NoError(t, err)
		require.Equal(t, "fresh", first.Message)
		require.Equal(t, int64(1), provider.calls.Load())
		require.Equal(t, 1, cache.sets)

		second, err := orch.Chat(context.Background(), "hey")
		require.NoError(t, err)
		require.Equal(t, "fresh", second.Message)
		// Served from cache; the provider was not called again.
		require.Equal(t, int64(1), provider.calls.Load())
	})
}

func TestOrchestrator_EditCode(t *testing.T) {
	t.Run("should concatenate edits in registration order", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		p1 := &mockProvider{
			id: "p1",
			editFunc: func(_ context.Context, _ *domain.CodeEditRequest, _ *domain.AiContext) (*domain.CodeEditResult, error) {
				return &domain.CodeEditResult{
					Edits:       []domain.CodeEdit{{NewText: "one"}},
					Explanation: "first",
				}, nil
			},
		}
		p2 := &mockProvider{
			id: "p2",
			editFunc: func(_ context.Context, _ *domain.CodeEditRequest, _ *domain.AiContext) (*domain.CodeEditResult, error) {
				return &domain.CodeEditResult{
					Edits:       []domain.CodeEdit{{NewText: "two"}},
					Explanation: "second",
				}, nil
			},
		}
		reg.add(p1, domain.KindCodeEdit)
		reg.add(p2, domain.KindCodeEdit)

		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.EditCode(context.Background(), &domain.CodeEditRequest{
			Source:      "x",
			Instruction: "rename",
		})

		require.NoError(t, err)
		require.Len(t, result.Edits, 2)
		require.Equal(t, "one", result.Edits[0].NewText)
		require.Equal(t, "two", result.Edits[1].NewText)
		require.Equal(t, "first", result.Explanation)
	})
}

func TestOrchestrator_PerformTask(t *testing.T) {
	t.Run("should run a single chat round-trip against the first provider", func(t *testing.T) {
		reg := newMockRegistry()
		bus := &recordingBus{}

		first := &mockProvider{
			id: "first",
			chatFunc: func(_ context.Context, message string, _ *domain.AiContext) (*domain.ChatResponse, error) {
				require.Contains(t, message, "Explain the following code:")
				return &domain.ChatResponse{Message: "It adds numbers.\n```go\na + b\n```"}, nil
			},
		}
		second := &mockProvider{id: "second"}
		reg.add(first, domain.KindChat)
		reg.add(second, domain.KindChat)

		orch := newOrchestrator(reg, bus, nil)

		result, err := orch.PerformTask(context.Background(), &domain.TaskRequest{
			Kind:  domain.KindExplanation,
			Input: "a + b",
		})

		require.NoError(t, err)
		require.Equal(t, "It adds numbers.", result.Text)
		require.Len(t, result.CodeBlocks, 1)
		require.Equal(t, int64(0), second.calls.Load())

		require.Len(t, bus.responses, 1)
		require.Equal(t, domain.KindExplanation, bus.responses[0].Kind)
	})

	t.Run("should reject fan-out kinds", func(t *testing.T) {
		orch := newOrchestrator(newMockRegistry(), &recordingBus{}, nil)

		_, err := orch.PerformTask(context.Background(), &domain.TaskRequest{
			Kind:  domain.KindChat,
			Input: "hello",
		})

		require.Error(t, err)
		require.Contains(t, err.Error(), "not a task operation")
	})

	t.Run("should fail with ErrNoProviders when no chat provider exists", func(t *testing.T) {
		bus := &recordingBus{}
		orch := newOrchestrator(newMockRegistry(), bus, nil)

		_, err := orch.PerformTask(context.Background(), &domain.TaskRequest{
			Kind:  domain.KindBugFix,
			Input: "broken",
		})

		require.ErrorIs(t, err, domain.ErrNoProviders)
		require.Len(t, bus.errors, 1)
		require.Equal(t, string(domain.KindBugFix), bus.errors[0].Operation)
	})
}

// Guard against cache entries round-tripping into the wrong shape.
func TestOrchestrator_CacheRoundTrip(t *testing.T) {
	t.Run("should round-trip a chat response through JSON intact", func(t *testing.T) {
		original := &domain.ChatResponse{
			Message:     "hello",
			CodeBlocks:  []domain.CodeBlock{{Language: "go", Code: "x()"}},
			Suggestions: []string{"s"},
		}

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var restored domain.ChatResponse
		require.NoError(t, json.Unmarshal(data, &restored))
		require.Equal(t, *original, restored)
	})
}
