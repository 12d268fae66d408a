package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/dig"

	"github.com/davidbz/haku/internal/aicontext"
	"github.com/davidbz/haku/internal/cache/redis"
	"github.com/davidbz/haku/internal/config"
	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/eventbus"
	"github.com/davidbz/haku/internal/http"
	"github.com/davidbz/haku/internal/http/middleware"
	"github.com/davidbz/haku/internal/observability"
	"github.com/davidbz/haku/internal/provider/echo"
	"github.com/davidbz/haku/internal/provider/openai"
	"github.com/davidbz/haku/internal/provider/registry"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

//nolint:funlen // Container wiring is deliberately linear
func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewCorrelator); err != nil {
		log.Fatalf("Failed to provide correlator: %v", err)
	}

	// Event Bus
	if err := container.Provide(eventbus.NewBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}
	if err := container.Provide(func(bus *eventbus.Bus) domain.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}

	// Provider Registry
	if err := container.Provide(registry.NewRegistry); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}
	if err := container.Provide(func(reg *registry.Registry) domain.ProviderRegistry {
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide provider registry: %v", err)
	}

	// Context Manager
	if err := container.Provide(aicontext.NewManager); err != nil {
		log.Fatalf("Failed to provide context manager: %v", err)
	}
	if err := container.Provide(func(manager *aicontext.Manager) domain.ContextSource {
		return manager
	}); err != nil {
		log.Fatalf("Failed to provide context source: %v", err)
	}

	// Response Cache (optional)
	if err := container.Provide(func(cfg *config.Config) (domain.ResponseCache, error) {
		if !cfg.Cache.Enabled {
			return nil, nil //nolint:nilnil // Disabled cache is represented as nil
		}
		return redis.NewStore(context.Background(), cfg.Cache)
	}); err != nil {
		log.Fatalf("Failed to provide response cache: %v", err)
	}

	// Providers
	if err := container.Provide(echo.NewProvider); err != nil {
		log.Fatalf("Failed to provide echo provider: %v", err)
	}
	if err := container.Provide(func(cfg *config.Config) (*openai.Provider, error) {
		if cfg.OpenAI.APIKey == "" {
			// Optional provider: skipped when no API key is configured.
			return nil, nil //nolint:nilnil // Absent provider is represented as nil
		}
		return openai.NewProvider(cfg.OpenAI)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(func(
		reg domain.ProviderRegistry,
		echoProvider *echo.Provider,
		openaiProvider *openai.Provider,
	) error {
		ctx := context.Background()

		register := func(provider domain.Provider) error {
			if err := provider.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize provider %s: %w", provider.ID(), err)
			}

			if _, err := reg.Register(ctx, provider, provider.Capabilities()); err != nil {
				return fmt.Errorf("failed to register provider %s: %w", provider.ID(), err)
			}

			return nil
		}

		if err := register(echoProvider); err != nil {
			return err
		}

		// OpenAI is optional; nil means no API key was configured.
		if openaiProvider != nil {
			if err := register(openaiProvider); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Observers: render error events through the logger. The core itself
	// never logs-and-continues; observability is the subscriber's job.
	if err := container.Invoke(func(bus *eventbus.Bus) {
		bus.SubscribeError(func(ctx context.Context, event domain.ErrorEvent) {
			observability.FromContext(ctx).Warn("dispatch error observed",
				observability.String("event_request_id", event.RequestID),
				observability.String("operation", event.Operation),
				observability.Error(event.Err))
		})
	}); err != nil {
		log.Fatalf("Failed to subscribe error observer: %v", err)
	}

	// Domain Services
	if err := container.Provide(domain.NewOrchestrator); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
