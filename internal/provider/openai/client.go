package openai

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
)

// ErrMissingAPIKey is returned when a provider has no credential.
var ErrMissingAPIKey = errors.New("API key is required")

// NewClient builds an SDK client for an OpenAI-compatible provider. All fields
// map to SDK options:
//   - APIKey: option.WithAPIKey()
//   - BaseURL: option.WithBaseURL(), defaulted per provider type
//
// No request timeout is set and SDK retries are disabled: the dispatcher
// bounds each attempt through the context and owns failover.
func NewClient(cfg domain.ProviderConfig, extra ...option.RequestOption) (openai.Client, error) {
	if cfg.APIKey == "" {
		return openai.Client{}, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(BaseURLFor(cfg)),
		option.WithMaxRetries(0),
	}

	opts = append(opts, extra...)

	return openai.NewClient(opts...), nil
}
