// Package anthropic translates the unified schema to and from the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/common"
)

const (
	// DefaultBaseURL is the public Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"
)

// ErrMissingAPIKey is returned when a provider has no credential.
var ErrMissingAPIKey = errors.New("API key is required")

// Translator implements domain.Translator for Anthropic.
type Translator struct {
	http    *resty.Client
	name    string
	apiKey  string
	baseURL string
}

// NewTranslator creates a translator bound to one configured provider.
func NewTranslator(cfg domain.ProviderConfig) (*Translator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, ErrMissingAPIKey)
	}

	return &Translator{
		http:    common.NewRESTClient(),
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: common.BaseURL(cfg.BaseURL, DefaultBaseURL),
	}, nil
}

// Name returns the provider identifier.
func (t *Translator) Name() string {
	return t.name
}

// ChatCompletion sends the request to /messages.
func (t *Translator) ChatCompletion(
	ctx context.Context,
	req *domain.ChatCompletionRequest,
) (*domain.ChatCompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	body, err := toMessagesRequest(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic messages API", observability.Int("messages", len(body.Messages)))

	var out messagesResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", t.apiKey).
		SetHeader("anthropic-version", APIVersion).
		SetBody(body).
		SetResult(&out).
		Post(t.baseURL + "/messages")
	if err != nil {
		return nil, common.FromTransportError(err)
	}

	if resp.IsError() {
		logger.Debug("Anthropic messages API call failed", observability.Int("status", resp.StatusCode()))
		return nil, common.FromHTTPStatus(resp.StatusCode(), resp.Body())
	}

	return toChatResponse(&out, req.Model), nil
}

// ImageGeneration is not offered by Anthropic.
func (t *Translator) ImageGeneration(
	context.Context,
	*domain.ImageGenerationRequest,
) (*domain.ImageGenerationResponse, error) {
	return nil, common.NotSupported(common.OperationImageGeneration)
}

// AudioTranscription is not offered by Anthropic.
func (t *Translator) AudioTranscription(
	context.Context,
	*domain.AudioTranscriptionRequest,
) (*domain.AudioTranscriptionResponse, error) {
	return nil, common.NotSupported(common.OperationAudioTranscription)
}

// knownModels is returned by ListModels; the API offers no discovery endpoint
// usable with a plain key.
var knownModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// ListModels returns the fixed Claude model list.
func (t *Translator) ListModels(context.Context) ([]string, error) {
	return append([]string(nil), knownModels...), nil
}
