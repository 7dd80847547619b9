package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/cooldown"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/moderation"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/discovery"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/ratelimit"
	"github.com/davidbz/hearth/internal/routing"
)

const shutdownTimeout = 30 * time.Second

// ErrNoProviders indicates that neither configuration nor discovery produced a
// usable provider.
var ErrNoProviders = errors.New("no providers configured")

func main() {
	container := buildContainer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := container.Invoke(func(server *http.Server) error {
		return run(ctx, server)
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

// run serves until the context is cancelled, then drains in-flight requests.
func run(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
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
	if err := container.Provide(func(cfg *config.LogConfig) (*zap.Logger, error) {
		return observability.InitLogger(cfg.Options())
	}); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Provider pool
	if err := container.Provide(func() *cooldown.Registry {
		return cooldown.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide cooldown registry: %v", err)
	}
	if err := container.Provide(registry.NewDefaultRegistry); err != nil {
		log.Fatalf("Failed to provide translator registry: %v", err)
	}
	if err := container.Provide(func(reg *registry.Registry) domain.TranslatorFactory {
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide translator factory: %v", err)
	}
	if err := container.Provide(resolveProviders); err != nil {
		log.Fatalf("Failed to provide providers: %v", err)
	}
	if err := container.Provide(func(providers []domain.ProviderConfig, cooldowns *cooldown.Registry) *routing.Balancer {
		return routing.NewBalancer(providers, cooldowns)
	}); err != nil {
		log.Fatalf("Failed to provide balancer: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		balancer *routing.Balancer,
		translators domain.TranslatorFactory,
		cooldowns *cooldown.Registry,
		events domain.EventPublisher,
		cfg *config.GatewayConfig,
	) *domain.GatewayService {
		return domain.NewGatewayService(balancer, translators, cooldowns, events, cfg.Settings())
	}); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// Request admission
	if err := container.Provide(auth.NewStore); err != nil {
		log.Fatalf("Failed to provide key store: %v", err)
	}
	if err := container.Provide(newLimiter); err != nil {
		log.Fatalf("Failed to provide rate limiter: %v", err)
	}
	if err := container.Provide(func(cfg *moderation.Config) *moderation.Service {
		return moderation.NewService(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide moderation service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(
		gateway *domain.GatewayService,
		keys *auth.Store,
		limiter *ratelimit.Limiter,
		moderator *moderation.Service,
		cooldowns *cooldown.Registry,
		balancer *routing.Balancer,
	) *http.Handler {
		return http.NewHandler(gateway, keys, limiter, moderator, cooldowns, balancer)
	}); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// resolveProviders fills in models for providers configured without any. The
// logger parameter only orders it after logger initialization.
func resolveProviders(
	pool config.ProviderPool,
	cfg *config.DiscoveryConfig,
	translators *registry.Registry,
	_ *zap.Logger,
) ([]domain.ProviderConfig, error) {
	ctx := context.Background()
	logger := observability.FromContext(ctx)

	providers := []domain.ProviderConfig(pool)
	if cfg.Enabled {
		providers = discovery.NewDiscoverer(translators, cfg.Timeout).Resolve(ctx, providers)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	for _, p := range providers {
		logger.Info("provider loaded",
			observability.String("name", p.Name),
			observability.String("type", string(p.Type)),
			observability.Int("models", len(p.Models)),
			observability.Bool("enabled", p.Enabled),
		)
		if !translators.Registered(p.Type) {
			logger.Warn("unknown provider type, using OpenAI-compatible translator",
				observability.String("name", p.Name),
				observability.String("type", string(p.Type)))
		}
	}

	return providers, nil
}

// newLimiter keeps rate-limit windows in Redis when an address is configured,
// so replicas share them, and in process memory otherwise. The logger
// parameter only orders it after logger initialization.
func newLimiter(cfg *config.RedisConfig, _ *zap.Logger) *ratelimit.Limiter {
	logger := observability.FromContext(context.Background())

	if cfg.Addr == "" {
		logger.Info("using in-memory rate limit store")
		return ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logger.Info("using redis rate limit store", observability.String("addr", cfg.Addr))

	return ratelimit.NewLimiter(ratelimit.NewRedisStore(client))
}
