// Package auth resolves callers from their bearer API key and enforces the
// per-key model allow-list.
package auth

import (
	"crypto/subtle"
	"errors"
	"regexp"

	"github.com/davidbz/hearth/internal/domain"
)

// Defaults applied to keys that do not override them.
const (
	DefaultRateLimit = "60/min"
	AllModels        = "*"
)

var (
	// ErrMissingCredentials is returned when no Authorization header is sent.
	ErrMissingCredentials = errors.New("missing authorization header")

	// ErrMalformedCredentials is returned when the header is not a bearer token.
	ErrMalformedCredentials = errors.New("invalid authorization header format")

	// ErrInvalidKey is returned when the bearer token is not a configured key.
	ErrInvalidKey = errors.New("invalid API key")
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// Config holds the key-store settings.
type Config struct {
	Keys       []string `env:"API_KEYS"        envSeparator:","`
	DefaultKey string   `env:"DEFAULT_API_KEY" envDefault:"default-key"`
	AdminKey   string   `env:"ADMIN_API_KEY"`

	// KeyConfigs carries the per-key settings, in API_KEYS order.
	KeyConfigs []KeyConfig `env:"-"`
}

// KeyConfig is one caller credential.
type KeyConfig struct {
	Key           string
	AllowedModels []string
	RateLimit     string
}

// AllowsModel reports whether any allow-list pattern matches model.
func (k KeyConfig) AllowsModel(model string) bool {
	for _, pattern := range k.AllowedModels {
		if domain.MatchModel(model, pattern) {
			return true
		}
	}
	return false
}

// Store is the immutable set of configured keys.
type Store struct {
	keys     map[string]KeyConfig
	adminKey string
}

// NewStore builds the store. When no keys are configured, the default key is
// accepted with access to every model.
func NewStore(cfg *Config) *Store {
	s := &Store{
		keys:     make(map[string]KeyConfig, len(cfg.KeyConfigs)),
		adminKey: cfg.AdminKey,
	}

	for _, key := range cfg.KeyConfigs {
		if key.Key == "" {
			continue
		}
		if len(key.AllowedModels) == 0 {
			key.AllowedModels = []string{AllModels}
		}
		if key.RateLimit == "" {
			key.RateLimit = DefaultRateLimit
		}
		s.keys[key.Key] = key
	}

	if len(s.keys) == 0 {
		defaultKey := cfg.DefaultKey
		if defaultKey == "" {
			defaultKey = "default-key"
		}
		s.keys[defaultKey] = KeyConfig{
			Key:           defaultKey,
			AllowedModels: []string{AllModels},
			RateLimit:     DefaultRateLimit,
		}
	}

	return s
}

// Authenticate resolves the key named by an Authorization header value.
func (s *Store) Authenticate(header string) (KeyConfig, error) {
	token, err := bearerToken(header)
	if err != nil {
		return KeyConfig{}, err
	}

	key, ok := s.keys[token]
	if !ok {
		return KeyConfig{}, ErrInvalidKey
	}
	return key, nil
}

// Lookup returns the configuration for a raw key.
func (s *Store) Lookup(key string) (KeyConfig, bool) {
	cfg, ok := s.keys[key]
	return cfg, ok
}

// AllowsModel reports whether key may use model. Unknown keys are denied.
func (s *Store) AllowsModel(key, model string) bool {
	cfg, ok := s.keys[key]
	return ok && cfg.AllowsModel(model)
}

// IsAdmin reports whether the header carries the admin key. Without a
// configured admin key nobody is an admin.
func (s *Store) IsAdmin(header string) bool {
	if s.adminKey == "" {
		return false
	}

	token, err := bearerToken(header)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminKey)) == 1
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredentials
	}

	match := bearerPattern.FindStringSubmatch(header)
	if match == nil {
		return "", ErrMalformedCredentials
	}
	return match[1], nil
}
