package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/domain"
)

var (
	// ErrDuplicateProvider is returned when two providers share a name.
	ErrDuplicateProvider = errors.New("duplicate provider name")

	// ErrInvalidProvider is returned when a file entry lacks a name or type.
	ErrInvalidProvider = errors.New("invalid provider definition")
)

// providerEnv is one provider's settings under a <TYPE>_ or <TYPE>_<n>_ prefix.
type providerEnv struct {
	APIKey    string   `env:"API_KEY"`
	BaseURL   string   `env:"BASE_URL"`
	Models    []string `env:"MODELS"     envSeparator:","`
	Weight    float64  `env:"WEIGHT"     envDefault:"1"`
	Enabled   bool     `env:"ENABLED"    envDefault:"true"`
	TimeoutMs int64    `env:"TIMEOUT"`
	Region    string   `env:"REGION"`
	ProjectID string   `env:"PROJECT_ID"`
}

// keyEnv is one API key's settings under an API_KEY_<n>_ prefix.
type keyEnv struct {
	Models    []string `env:"MODELS"     envSeparator:"," envDefault:"*"`
	RateLimit string   `env:"RATE_LIMIT"                  envDefault:"60/min"`
}

// envPrefix turns a provider type into its variable prefix: "302ai" -> "302AI_".
func envPrefix(t domain.ProviderType) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(string(t))) + "_"
}

// loadEnvProviders scans <TYPE>_API_KEY (named <type>-default) and
// <TYPE>_<n>_API_KEY for n = 1, 2, ... (named <type>-<n>) for every known type.
// Echo providers need no key; setting their models is enough.
func loadEnvProviders(environ map[string]string) ([]domain.ProviderConfig, error) {
	var providers []domain.ProviderConfig

	for _, providerType := range domain.KnownProviderTypes() {
		prefix := envPrefix(providerType)

		if provider, ok, err := parseProvider(environ, prefix, providerType, string(providerType)+"-default"); err != nil {
			return nil, err
		} else if ok {
			providers = append(providers, provider)
		}

		for index := 1; ; index++ {
			indexed := prefix + strconv.Itoa(index) + "_"
			_, hasKey := environ[indexed+"API_KEY"]
			_, hasModels := environ[indexed+"MODELS"]
			if !hasKey && (providerType != domain.ProviderEcho || !hasModels) {
				break
			}

			name := fmt.Sprintf("%s-%d", providerType, index)
			provider, ok, err := parseProvider(environ, indexed, providerType, name)
			if err != nil {
				return nil, err
			}
			if ok {
				providers = append(providers, provider)
			}
		}
	}

	return providers, nil
}

func parseProvider(
	environ map[string]string,
	prefix string,
	providerType domain.ProviderType,
	name string,
) (domain.ProviderConfig, bool, error) {
	var raw providerEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ, Prefix: prefix}); err != nil {
		return domain.ProviderConfig{}, false, fmt.Errorf("failed to parse provider %s: %w", name, err)
	}

	models := cleanList(raw.Models)
	if raw.APIKey == "" && (providerType != domain.ProviderEcho || len(models) == 0) {
		return domain.ProviderConfig{}, false, nil
	}

	return domain.ProviderConfig{
		Name:    name,
		Type:    providerType,
		APIKey:  raw.APIKey,
		BaseURL: raw.BaseURL,
		Models:  models,
		Weight:  raw.Weight,
		Enabled: raw.Enabled,
		Timeout: time.Duration(raw.TimeoutMs) * time.Millisecond,
		Region:  raw.Region,
		Project: raw.ProjectID,
	}, true, nil
}

// loadAPIKeys reads API_KEY_<n>_MODELS and API_KEY_<n>_RATE_LIMIT for the
// n-th entry of API_KEYS.
func loadAPIKeys(keys []string, environ map[string]string) ([]auth.KeyConfig, error) {
	configs := make([]auth.KeyConfig, 0, len(keys))

	index := 0
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		index++

		var raw keyEnv
		prefix := fmt.Sprintf("API_KEY_%d_", index)
		if err := env.ParseWithOptions(&raw, env.Options{Environment: environ, Prefix: prefix}); err != nil {
			return nil, fmt.Errorf("failed to parse API key %d: %w", index, err)
		}

		configs = append(configs, auth.KeyConfig{
			Key:           key,
			AllowedModels: cleanList(raw.Models),
			RateLimit:     raw.RateLimit,
		})
	}

	return configs, nil
}

// providersFile is the YAML layout of PROVIDERS_FILE.
type providersFile struct {
	Providers []fileProvider `yaml:"providers"`
}

type fileProvider struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	APIKey    string   `yaml:"api_key"`
	BaseURL   string   `yaml:"base_url"`
	Models    []string `yaml:"models"`
	Weight    float64  `yaml:"weight"`
	Enabled   *bool    `yaml:"enabled"`
	TimeoutMs int64    `yaml:"timeout_ms"`
	Region    string   `yaml:"region"`
	ProjectID string   `yaml:"project_id"`
}

// loadProvidersFile reads providers from YAML. ${VAR} references are expanded
// from environ before parsing.
func loadProvidersFile(path string, environ map[string]string) ([]domain.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return environ[key]
	})

	var file providersFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	providers := make([]domain.ProviderConfig, 0, len(file.Providers))
	for i, p := range file.Providers {
		if p.Name == "" || p.Type == "" {
			return nil, fmt.Errorf("providers[%d]: %w: name and type are required", i, ErrInvalidProvider)
		}

		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}

		weight := p.Weight
		if weight == 0 {
			weight = domain.DefaultWeight
		}

		providers = append(providers, domain.ProviderConfig{
			Name:    p.Name,
			Type:    domain.ProviderType(strings.ToLower(p.Type)),
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Models:  cleanList(p.Models),
			Weight:  weight,
			Enabled: enabled,
			Timeout: time.Duration(p.TimeoutMs) * time.Millisecond,
			Region:  p.Region,
			Project: p.ProjectID,
		})
	}

	return providers, nil
}

func validateProviders(providers []domain.ProviderConfig) error {
	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if _, exists := seen[p.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
