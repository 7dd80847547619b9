package openai

import (
	"fmt"

	"github.com/davidbz/hearth/internal/domain"
)

// Default base URLs of the OpenAI-compatible backends.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
	AI302BaseURL      = "https://api.302.ai/v1"
	CohereBaseURL     = "https://api.cohere.ai/compatibility/v1"

	cloudflareBaseURL = "https://api.cloudflare.com/client/v4/accounts/%s/ai/v1"
	vertexBaseURL     = "https://%[1]s-aiplatform.googleapis.com/v1/projects/%[2]s/locations/%[1]s/endpoints/openapi"
	bedrockBaseURL    = "https://bedrock-runtime.%s.amazonaws.com/openai/v1"
)

// BaseURLFor returns the configured base URL, or the default for the provider
// type. Account- and region-scoped types build it from Project and Region.
// Unknown types, and scoped types missing those fields, default to OpenAI.
func BaseURLFor(cfg domain.ProviderConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}

	switch cfg.Type {
	case domain.ProviderGroq:
		return GroqBaseURL
	case domain.ProviderOpenRouter:
		return OpenRouterBaseURL
	case domain.ProviderXAI:
		return XAIBaseURL
	case domain.Provider302AI:
		return AI302BaseURL
	case domain.ProviderCohere:
		return CohereBaseURL
	case domain.ProviderCloudflare:
		if cfg.Project != "" {
			return fmt.Sprintf(cloudflareBaseURL, cfg.Project)
		}
	case domain.ProviderVertex:
		if cfg.Project != "" && cfg.Region != "" {
			return fmt.Sprintf(vertexBaseURL, cfg.Region, cfg.Project)
		}
	case domain.ProviderAWS:
		if cfg.Region != "" {
			return fmt.Sprintf(bedrockBaseURL, cfg.Region)
		}
	}

	return DefaultBaseURL
}
