package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// ErrNoProvider means no enabled provider serves the requested model.
var ErrNoProvider = errors.New("no provider available")

// CooldownChecker reports whether a provider is temporarily suppressed.
type CooldownChecker interface {
	IsSuppressed(providerName string) bool
}

// Balancer picks providers for a model by weighted random selection, skipping
// providers that are cooling down.
type Balancer struct {
	providers []domain.ProviderConfig
	cooldowns CooldownChecker
	random    func() float64
}

// Option customizes a Balancer.
type Option func(*Balancer)

// WithRandom replaces the uniform [0,1) source used for weighted selection.
func WithRandom(random func() float64) Option {
	return func(b *Balancer) {
		b.random = random
	}
}

// NewBalancer creates a balancer over a fixed provider pool.
func NewBalancer(providers []domain.ProviderConfig, cooldowns CooldownChecker, opts ...Option) *Balancer {
	b := &Balancer{
		providers: providers,
		cooldowns: cooldowns,
		random:    rand.Float64,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Candidates returns enabled providers serving model, in configuration order.
func (b *Balancer) Candidates(model string) []domain.ProviderConfig {
	candidates := make([]domain.ProviderConfig, 0, len(b.providers))
	for _, p := range b.providers {
		if p.Enabled && p.Supports(model) {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

// Models returns the sorted, de-duplicated model patterns of enabled providers.
func (b *Balancer) Models() []string {
	seen := make(map[string]struct{})
	models := make([]string, 0)
	for _, p := range b.providers {
		if !p.Enabled {
			continue
		}
		for _, m := range p.Models {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			models = append(models, m)
		}
	}
	sort.Strings(models)
	return models
}

// Serves reports whether any enabled provider accepts model.
func (b *Balancer) Serves(model string) bool {
	return len(b.Candidates(model)) > 0
}

// SelectInitial picks the provider for the first attempt. When every candidate
// is cooling down it returns the first candidate anyway.
func (b *Balancer) SelectInitial(ctx context.Context, model string) (domain.ProviderConfig, error) {
	logger := observability.FromContext(ctx)

	candidates := b.Candidates(model)
	if len(candidates) == 0 {
		logger.Error("no providers configured for model", observability.String("model", model))
		return domain.ProviderConfig{}, fmt.Errorf("%w for model: %s", ErrNoProvider, model)
	}

	available := b.filter(candidates, nil)
	if len(available) == 0 {
		logger.Warn("all providers for model are cooling down, using first candidate",
			observability.String("model", model),
			observability.String("selected", candidates[0].Name))
		return candidates[0], nil
	}

	selected := b.weighted(available)
	logger.Debug("provider selected",
		observability.String("model", model),
		observability.String("selected", selected.Name),
		observability.Int("available", len(available)))

	return selected, nil
}

// SelectNext picks a provider for a retry, skipping excluded names and cooling
// providers. It reports false when nothing is left.
func (b *Balancer) SelectNext(
	ctx context.Context,
	model string,
	excluded map[string]struct{},
) (domain.ProviderConfig, bool) {
	available := b.filter(b.Candidates(model), excluded)
	if len(available) == 0 {
		observability.FromContext(ctx).Warn("no more providers available for retry",
			observability.String("model", model),
			observability.Int("excluded", len(excluded)))
		return domain.ProviderConfig{}, false
	}

	return b.weighted(available), true
}

func (b *Balancer) filter(candidates []domain.ProviderConfig, excluded map[string]struct{}) []domain.ProviderConfig {
	available := make([]domain.ProviderConfig, 0, len(candidates))
	for _, p := range candidates {
		if _, skip := excluded[p.Name]; skip {
			continue
		}
		if b.cooldowns != nil && b.cooldowns.IsSuppressed(p.Name) {
			continue
		}
		available = append(available, p)
	}
	return available
}

// weighted draws r in [0, total) and walks the candidates subtracting weights
// until r <= 0. Float drift falls through to the last candidate.
func (b *Balancer) weighted(candidates []domain.ProviderConfig) domain.ProviderConfig {
	total := 0.0
	for _, p := range candidates {
		total += p.EffectiveWeight()
	}

	r := b.random() * total
	for _, p := range candidates {
		r -= p.EffectiveWeight()
		if r <= 0 {
			return p
		}
	}

	return candidates[len(candidates)-1]
}
