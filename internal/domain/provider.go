package domain

import "time"

// ProviderType identifies a provider protocol family.
type ProviderType string

// Supported provider types. Unknown types are treated as OpenAI-compatible.
const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
	ProviderVertex     ProviderType = "vertex"
	ProviderAzure      ProviderType = "azure"
	ProviderAWS        ProviderType = "aws"
	ProviderXAI        ProviderType = "xai"
	ProviderCohere     ProviderType = "cohere"
	ProviderGroq       ProviderType = "groq"
	ProviderCloudflare ProviderType = "cloudflare"
	ProviderOpenRouter ProviderType = "openrouter"
	Provider302AI      ProviderType = "302ai"
	ProviderEcho       ProviderType = "echo"
)

// KnownProviderTypes lists the types the configuration loader scans for.
func KnownProviderTypes() []ProviderType {
	return []ProviderType{
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderGemini,
		ProviderVertex,
		ProviderAzure,
		ProviderAWS,
		ProviderXAI,
		ProviderCohere,
		ProviderGroq,
		ProviderCloudflare,
		ProviderOpenRouter,
		Provider302AI,
		ProviderEcho,
	}
}

// DefaultWeight is used when a provider has no positive weight.
const DefaultWeight = 1.0

// ProviderConfig is the static configuration of one backend endpoint.
// It is immutable after load and shared read-only by concurrent dispatches.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	Type    ProviderType  `yaml:"type"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Models  []string      `yaml:"models"`
	Weight  float64       `yaml:"weight"`
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"-"`

	// Region and Project complete the default base URL of region- or
	// account-scoped backends (vertex, aws, cloudflare).
	Region  string `yaml:"region"`
	Project string `yaml:"project_id"`
}

// EffectiveWeight returns the selection weight, defaulting non-positive weights to 1.
func (p ProviderConfig) EffectiveWeight() float64 {
	if p.Weight <= 0 {
		return DefaultWeight
	}
	return p.Weight
}

// Supports reports whether any of the provider's model patterns matches model.
func (p ProviderConfig) Supports(model string) bool {
	for _, pattern := range p.Models {
		if MatchModel(model, pattern) {
			return true
		}
	}
	return false
}

// CooldownEntry records that a provider is suppressed until an absolute time.
type CooldownEntry struct {
	ProviderName    string    `json:"provider"`
	SuppressedUntil time.Time `json:"suppressed_until"`
}
