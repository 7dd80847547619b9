// Package discovery fills in model lists for providers configured with a
// credential but no models.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// DefaultTimeout bounds one provider's model listing.
const DefaultTimeout = 10 * time.Second

// ModelLister is implemented by translators that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Discoverer resolves model lists through the translators' listing calls.
type Discoverer struct {
	factory domain.TranslatorFactory
	timeout time.Duration
}

// NewDiscoverer creates a discoverer. A non-positive timeout uses DefaultTimeout.
func NewDiscoverer(factory domain.TranslatorFactory, timeout time.Duration) *Discoverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Discoverer{
		factory: factory,
		timeout: timeout,
	}
}

// Resolve returns the pool with discovered models filled in. Providers that
// already list models pass through untouched. Discovery failures are logged
// and the provider is dropped, since it could never match a model.
func (d *Discoverer) Resolve(ctx context.Context, providers []domain.ProviderConfig) []domain.ProviderConfig {
	logger := observability.FromContext(ctx)

	resolved := make([]domain.ProviderConfig, len(providers))
	ok := make([]bool, len(providers))

	var wg sync.WaitGroup
	for i, provider := range providers {
		if len(provider.Models) > 0 {
			resolved[i] = provider
			ok[i] = true
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			models, err := d.discover(ctx, provider)
			if err != nil {
				logger.Warn("model discovery failed, skipping provider",
					observability.String("provider", provider.Name),
					observability.String("type", string(provider.Type)),
					observability.Error(err),
				)
				return
			}
			if len(models) == 0 {
				logger.Warn("model discovery returned no models, skipping provider",
					observability.String("provider", provider.Name),
				)
				return
			}

			logger.Info("discovered models",
				observability.String("provider", provider.Name),
				observability.Int("count", len(models)),
			)

			provider.Models = models
			resolved[i] = provider
			ok[i] = true
		}()
	}
	wg.Wait()

	out := make([]domain.ProviderConfig, 0, len(providers))
	for i, provider := range resolved {
		if ok[i] {
			out = append(out, provider)
		}
	}
	return out
}

func (d *Discoverer) discover(ctx context.Context, provider domain.ProviderConfig) ([]string, error) {
	translator, err := d.factory.New(provider)
	if err != nil {
		return nil, err
	}

	lister, ok := translator.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("provider type %s cannot list models", provider.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return lister.ListModels(ctx)
}
