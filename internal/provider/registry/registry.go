// Package registry builds protocol translators from provider configuration,
// keyed on the provider type.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/gemini"
	"github.com/davidbz/hearth/internal/provider/openai"
)

// Builder constructs a translator for one configured provider.
type Builder func(cfg domain.ProviderConfig) (domain.Translator, error)

// Registry implements domain.TranslatorFactory. Translators are built once per
// provider name and reused across dispatches.
type Registry struct {
	mu          sync.RWMutex
	builders    map[domain.ProviderType]Builder
	fallback    Builder
	translators map[string]domain.Translator
}

// NewRegistry creates an empty registry. Types without a builder are treated
// as OpenAI-compatible.
func NewRegistry() *Registry {
	return &Registry{
		mu:          sync.RWMutex{},
		builders:    make(map[domain.ProviderType]Builder),
		fallback:    buildOpenAI,
		translators: make(map[string]domain.Translator),
	}
}

// NewDefaultRegistry creates a registry with every built-in translator family
// registered.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for providerType, builder := range Builtins() {
		if err := r.Register(providerType, builder); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtins returns the builder of each known provider type.
func Builtins() map[domain.ProviderType]Builder {
	builders := make(map[domain.ProviderType]Builder, len(domain.KnownProviderTypes()))
	for _, t := range domain.KnownProviderTypes() {
		builders[t] = buildOpenAI
	}
	builders[domain.ProviderAnthropic] = buildAnthropic
	builders[domain.ProviderGemini] = buildGemini
	builders[domain.ProviderEcho] = buildEcho

	return builders
}

// Registered reports whether providerType has its own builder.
func (r *Registry) Registered(providerType domain.ProviderType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.builders[providerType]
	return ok
}

// Register adds a builder for a provider type.
func (r *Registry) Register(providerType domain.ProviderType, builder Builder) error {
	if providerType == "" {
		return errors.New("provider type cannot be empty")
	}
	if builder == nil {
		return errors.New("builder cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[providerType]; exists {
		return fmt.Errorf("provider type %s already registered", providerType)
	}

	r.builders[providerType] = builder
	return nil
}

// New returns the translator for cfg, building it on first use.
func (r *Registry) New(cfg domain.ProviderConfig) (domain.Translator, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	translator, exists := r.translators[cfg.Name]
	r.mu.RUnlock()
	if exists {
		return translator, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if translator, exists = r.translators[cfg.Name]; exists {
		return translator, nil
	}

	builder, ok := r.builders[cfg.Type]
	if !ok {
		builder = r.fallback
	}

	translator, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build translator for %s: %w", cfg.Name, err)
	}

	r.translators[cfg.Name] = translator
	return translator, nil
}

func buildOpenAI(cfg domain.ProviderConfig) (domain.Translator, error) {
	translator, err := openai.NewTranslator(cfg)
	if err != nil {
		return nil, err
	}
	return translator, nil
}

func buildAnthropic(cfg domain.ProviderConfig) (domain.Translator, error) {
	translator, err := anthropic.NewTranslator(cfg)
	if err != nil {
		return nil, err
	}
	return translator, nil
}

func buildGemini(cfg domain.ProviderConfig) (domain.Translator, error) {
	translator, err := gemini.NewTranslator(cfg)
	if err != nil {
		return nil, err
	}
	return translator, nil
}

func buildEcho(cfg domain.ProviderConfig) (domain.Translator, error) {
	return echo.NewTranslator(cfg), nil
}
