// Package gemini translates the unified schema to and from the Gemini
// generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/common"
)

// DefaultBaseURL is the public Gemini API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const generateContentMethod = "generateContent"

// ErrMissingAPIKey is returned when a provider has no credential.
var ErrMissingAPIKey = errors.New("API key is required")

// Translator implements domain.Translator for Gemini.
type Translator struct {
	http    *resty.Client
	name    string
	apiKey  string
	baseURL string
	now     func() time.Time
}

// Option configures a Translator.
type Option func(*Translator)

// WithClock overrides the clock used for response ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Translator) {
		t.now = now
	}
}

// NewTranslator creates a translator bound to one configured provider.
func NewTranslator(cfg domain.ProviderConfig, opts ...Option) (*Translator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, ErrMissingAPIKey)
	}

	t := &Translator{
		http:    common.NewRESTClient(),
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: common.BaseURL(cfg.BaseURL, DefaultBaseURL),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Name returns the provider identifier.
func (t *Translator) Name() string {
	return t.name
}

// ChatCompletion sends the request to models/{model}:generateContent.
func (t *Translator) ChatCompletion(
	ctx context.Context,
	req *domain.ChatCompletionRequest,
) (*domain.ChatCompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	body, err := toGenerateRequest(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini generateContent", observability.Int("contents", len(body.Contents)))

	var out generateResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetQueryParam("key", t.apiKey).
		SetPathParam("model", req.Model).
		SetBody(body).
		SetResult(&out).
		Post(t.baseURL + "/models/{model}:" + generateContentMethod)
	if err != nil {
		return nil, common.FromTransportError(err)
	}

	if resp.IsError() {
		logger.Debug("Gemini generateContent failed", observability.Int("status", resp.StatusCode()))
		return nil, common.FromHTTPStatus(resp.StatusCode(), resp.Body())
	}

	return toChatResponse(&out, req.Model, t.now())
}

// ImageGeneration is not offered through this translator.
func (t *Translator) ImageGeneration(
	context.Context,
	*domain.ImageGenerationRequest,
) (*domain.ImageGenerationResponse, error) {
	return nil, common.NotSupported(common.OperationImageGeneration)
}

// AudioTranscription is not offered through this translator.
func (t *Translator) AudioTranscription(
	context.Context,
	*domain.AudioTranscriptionRequest,
) (*domain.AudioTranscriptionResponse, error) {
	return nil, common.NotSupported(common.OperationAudioTranscription)
}

// ListModels returns the ids of models that support generateContent, without
// the "models/" prefix.
func (t *Translator) ListModels(ctx context.Context) ([]string, error) {
	var out modelList
	resp, err := t.http.R().
		SetContext(ctx).
		SetQueryParam("key", t.apiKey).
		SetResult(&out).
		Get(t.baseURL + "/models")
	if err != nil {
		return nil, common.FromTransportError(err)
	}
	if resp.IsError() {
		return nil, common.FromHTTPStatus(resp.StatusCode(), resp.Body())
	}

	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == generateContentMethod {
				models = append(models, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	return models, nil
}
