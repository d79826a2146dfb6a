package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/ratelimit"
)

const shutdownTimeout = 15 * time.Second

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(run)
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func run(server *http.Server, responseCache domain.Cache, limiters *ratelimit.Registry) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		observability.FromContext(ctx).Error("shutdown failed", observability.Error(err))
	}
	_ = limiters.Close()
	_ = responseCache.Close()
}

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

	// Provider Registry
	if err := container.Provide(registry.NewRegistry); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}
	if err := container.Provide(func(r *registry.Registry) domain.ProviderRegistry {
		return r
	}); err != nil {
		log.Fatalf("Failed to provide registry interface: %v", err)
	}

	// Pricing
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *config.Config) (*openai.Provider, error) {
		if cfg.OpenAI.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(cfg.OpenAI)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Response cache
	if err := container.Provide(newResponseCache); err != nil {
		log.Fatalf("Failed to provide cache: %v", err)
	}

	// Rate limiting and pipeline
	if err := container.Provide(func(cfg *config.Config) *ratelimit.Registry {
		return ratelimit.NewRegistry(cfg.RateLimit.LimiterConfig())
	}); err != nil {
		log.Fatalf("Failed to provide rate limiters: %v", err)
	}
	if err := container.Provide(func(cfg *config.Config, responseCache domain.Cache, limiters *ratelimit.Registry) *pipeline.Pipeline {
		return pipeline.New(responseCache, limiters, cfg.Retry.PipelineConfig())
	}); err != nil {
		log.Fatalf("Failed to provide pipeline: %v", err)
	}

	// Register providers and pricing (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register providers: %v", err)
		}
		if err := container.Invoke(func(reg *registry.Registry, pricing domain.PricingRegistry) error {
			return registerEcho(reg, pricing)
		}); err != nil {
			log.Fatalf("Failed to register echo provider: %v", err)
		}
	}

	// Orchestration
	if err := container.Provide(gateway.NewService); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(func(corsCfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsCfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// newResponseCache selects the cache backend from configuration.
func newResponseCache(cfg *config.Config) (domain.Cache, error) {
	opts := cfg.Cache.Options()

	switch cfg.Cache.Backend {
	case "lru":
		return cache.NewLRU(opts)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		return cache.NewRedis(client, opts), nil
	default:
		return cache.NewMemory(opts), nil
	}
}

// registerProviders wires every configured provider plus its pricing. The
// echo provider is always available as a zero-cost development target.
func registerProviders(
	reg *registry.Registry,
	pricing domain.PricingRegistry,
	openaiProvider *openai.Provider,
) error {
	ctx := context.Background()

	if err := registerEcho(reg, pricing); err != nil {
		return err
	}

	if openaiProvider != nil {
		if err := reg.Register(ctx, openaiProvider); err != nil {
			return fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
		if err := openai.RegisterPricing(ctx, pricing); err != nil {
			return err
		}
		// Prefer the real provider over echo when both are available.
		if err := reg.SetDefault(ctx, openaiProvider.Name()); err != nil {
			return err
		}
	}

	return nil
}

func registerEcho(reg *registry.Registry, pricing domain.PricingRegistry) error {
	ctx := context.Background()

	if err := reg.Register(ctx, echo.NewProvider()); err != nil {
		return fmt.Errorf("failed to register echo provider: %w", err)
	}
	if err := echo.RegisterPricing(ctx, pricing); err != nil {
		return err
	}
	return nil
}
