package domain

import (
	"context"
	"time"
)

// Translator speaks one backend family's native protocol on behalf of the
// unified schema. Operations a backend cannot serve fail fast with an
// invalid_request_error envelope.
type Translator interface {
	// Name returns the configured provider name this translator is bound to.
	Name() string

	// ChatCompletion sends a chat request and returns the unified response.
	ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// ImageGeneration sends an image generation request.
	ImageGeneration(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error)

	// AudioTranscription sends an audio transcription request.
	AudioTranscription(ctx context.Context, req *AudioTranscriptionRequest) (*AudioTranscriptionResponse, error)
}

// TranslatorFactory builds a translator for a provider configuration.
type TranslatorFactory interface {
	// New returns the translator matching cfg.Type.
	New(cfg ProviderConfig) (Translator, error)
}

// ProviderSelector chooses the provider for each dispatch attempt.
type ProviderSelector interface {
	// SelectInitial picks the provider for the first attempt.
	SelectInitial(ctx context.Context, model string) (ProviderConfig, error)

	// SelectNext picks a provider for a later attempt, skipping excluded names.
	// It reports false when no candidate remains.
	SelectNext(ctx context.Context, model string, excluded map[string]struct{}) (ProviderConfig, bool)
}

// CooldownRecorder suppresses a provider after a retriable failure.
type CooldownRecorder interface {
	// Put suppresses providerName for d, replacing any existing window.
	Put(providerName string, d time.Duration)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]any)
}
