// Package config loads gateway settings and the provider pool from the
// environment, an optional .env file and an optional YAML providers file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/moderation"
	"github.com/davidbz/hearth/internal/observability"
)

// Config represents the gateway configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Log        LogConfig
	Gateway    GatewayConfig
	Discovery  DiscoveryConfig
	Redis      RedisConfig
	Auth       auth.Config
	Moderation moderation.Config

	// Providers is the pool, in load order: environment first, then file.
	Providers ProviderPool `env:"-"`
}

// ServerConfig contains HTTP server settings. Timeouts are in seconds.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"600"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,HEAD,POST,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL"       envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// Options converts the settings for observability.InitLogger.
func (c *LogConfig) Options() observability.LoggerOptions {
	return observability.LoggerOptions{
		Level:       c.Level,
		Development: c.Development,
	}
}

// GatewayConfig holds dispatch settings. Durations are in milliseconds.
type GatewayConfig struct {
	MaxRetries       int              `env:"MAX_RETRIES"     envDefault:"3"`
	CooldownTimeMs   int64            `env:"COOLDOWN_TIME"   envDefault:"300000"`
	DefaultTimeoutMs int64            `env:"DEFAULT_TIMEOUT" envDefault:"120000"`
	ModelTimeoutsMs  map[string]int64 `env:"MODEL_TIMEOUTS"  envSeparator:"," envKeyValSeparator:"="`
	ProvidersFile    string           `env:"PROVIDERS_FILE"`

	// modelTimeoutVars holds MODEL_<NAME>_TIMEOUT values keyed by <NAME>.
	modelTimeoutVars map[string]int64
}

const (
	modelTimeoutPrefix = "MODEL_"
	modelTimeoutSuffix = "_TIMEOUT"
)

var modelVarReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_", ":", "_")

// ModelTimeoutVar returns the variable that overrides the timeout of model:
// "gpt-4o" -> "MODEL_GPT_4O_TIMEOUT".
func ModelTimeoutVar(model string) string {
	return modelTimeoutPrefix + modelVarKey(model) + modelTimeoutSuffix
}

func modelVarKey(model string) string {
	return strings.ToUpper(modelVarReplacer.Replace(model))
}

// Settings converts the configuration for the dispatch controller.
func (c *GatewayConfig) Settings() domain.Settings {
	timeouts := make(map[string]time.Duration, len(c.ModelTimeoutsMs))
	for model, ms := range c.ModelTimeoutsMs {
		timeouts[model] = time.Duration(ms) * time.Millisecond
	}

	vars := c.modelTimeoutVars

	return domain.Settings{
		MaxRetries:       c.MaxRetries,
		CooldownDuration: time.Duration(c.CooldownTimeMs) * time.Millisecond,
		DefaultTimeout:   time.Duration(c.DefaultTimeoutMs) * time.Millisecond,
		ModelTimeouts:    timeouts,
		ModelTimeout: func(model string) (time.Duration, bool) {
			ms, ok := vars[modelVarKey(model)]
			return time.Duration(ms) * time.Millisecond, ok
		},
	}
}

// loadModelTimeoutVars collects MODEL_<NAME>_TIMEOUT variables.
func loadModelTimeoutVars(environ map[string]string) (map[string]int64, error) {
	vars := make(map[string]int64)
	for name, value := range environ {
		if !strings.HasPrefix(name, modelTimeoutPrefix) || !strings.HasSuffix(name, modelTimeoutSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, modelTimeoutPrefix), modelTimeoutSuffix)
		if key == "" {
			continue
		}

		ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		vars[key] = ms
	}
	return vars, nil
}

// DiscoveryConfig controls model auto-discovery at startup.
type DiscoveryConfig struct {
	Enabled bool          `env:"DISCOVERY_ENABLED" envDefault:"true"`
	Timeout time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"10s"`
}

// RedisConfig selects the shared rate-limit store. An empty address keeps
// windows in process memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// ProviderPool is the configured provider list before discovery.
type ProviderPool []domain.ProviderConfig

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*LogConfig
	*GatewayConfig
	*DiscoveryConfig
	*RedisConfig
	Auth       *auth.Config
	Moderation *moderation.Config
	ProviderPool
}

// Load reads .env (when present) and parses the process environment.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	return LoadFromEnvironment(env.ToMap(os.Environ()))
}

// LoadFromEnvironment parses configuration from an explicit environment map.
func LoadFromEnvironment(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	modelTimeouts, err := loadModelTimeoutVars(environ)
	if err != nil {
		return nil, err
	}
	cfg.Gateway.modelTimeoutVars = modelTimeouts

	keys, err := loadAPIKeys(cfg.Auth.Keys, environ)
	if err != nil {
		return nil, err
	}
	cfg.Auth.KeyConfigs = keys

	providers, err := loadEnvProviders(environ)
	if err != nil {
		return nil, err
	}

	if cfg.Gateway.ProvidersFile != "" {
		fromFile, err := loadProvidersFile(cfg.Gateway.ProvidersFile, environ)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fromFile...)
	}

	if err := validateProviders(providers); err != nil {
		return nil, err
	}
	cfg.Providers = providers

	return &cfg, nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Log,
		&cfg.Gateway,
		&cfg.Discovery,
		&cfg.Redis,
		&cfg.Auth,
		&cfg.Moderation,
		cfg.Providers,
	}
}
