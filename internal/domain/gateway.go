package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davidbz/hearth/internal/observability"
)

// ErrNoProviderAvailable is returned when the first selection finds nothing to
// dispatch to. It is fatal and never retried.
var ErrNoProviderAvailable = NewError(ErrorTypeInvalidRequest, StatusCode(http.StatusBadRequest), "no provider available")

// Settings bounds the dispatch loop.
type Settings struct {
	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries int

	// CooldownDuration is how long a provider is suppressed after a retriable failure.
	CooldownDuration time.Duration

	// DefaultTimeout applies when neither the model nor the provider sets one.
	DefaultTimeout time.Duration

	// ModelTimeouts overrides the attempt timeout per exact model name.
	ModelTimeouts map[string]time.Duration

	// ModelTimeout, when set, resolves overrides not found in ModelTimeouts.
	ModelTimeout func(model string) (time.Duration, bool)
}

// GatewayService orchestrates requests to providers: it selects a provider,
// races the call against the attempt timeout, classifies failures, cools down
// unhealthy providers and fails over until attempts run out.
type GatewayService struct {
	selector    ProviderSelector
	translators TranslatorFactory
	cooldowns   CooldownRecorder
	events      EventPublisher
	settings    Settings
}

// NewGatewayService creates a new gateway service (DI constructor).
func NewGatewayService(
	selector ProviderSelector,
	translators TranslatorFactory,
	cooldowns CooldownRecorder,
	events EventPublisher,
	settings Settings,
) *GatewayService {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}

	return &GatewayService{
		selector:    selector,
		translators: translators,
		cooldowns:   cooldowns,
		events:      events,
		settings:    settings,
	}
}

// Chat dispatches a chat completion.
func (g *GatewayService) Chat(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req == nil {
		return nil, NewError(ErrorTypeInvalidRequest, StatusCode(http.StatusBadRequest), "request cannot be nil")
	}

	if req.Model == "" {
		return nil, NewError(ErrorTypeInvalidRequest, StatusCode(http.StatusBadRequest), "model is required")
	}

	resp, provider, err := dispatch(ctx, g, req.Model,
		func(ctx context.Context, t Translator) (*ChatCompletionResponse, error) {
			return t.ChatCompletion(ctx, req)
		})
	if err != nil {
		return nil, err
	}

	resp.Provider = provider
	return resp, nil
}

// GenerateImage dispatches an image generation request.
func (g *GatewayService) GenerateImage(
	ctx context.Context,
	req *ImageGenerationRequest,
) (*ImageGenerationResponse, error) {
	if req == nil {
		return nil, NewError(ErrorTypeInvalidRequest, StatusCode(http.StatusBadRequest), "request cannot be nil")
	}

	if req.Model == "" {
		req.Model = DefaultImageModel
	}

	resp, provider, err := dispatch(ctx, g, req.Model,
		func(ctx context.Context, t Translator) (*ImageGenerationResponse, error) {
			return t.ImageGeneration(ctx, req)
		})
	if err != nil {
		return nil, err
	}

	resp.Provider = provider
	return resp, nil
}

// Transcribe dispatches an audio transcription request.
func (g *GatewayService) Transcribe(
	ctx context.Context,
	req *AudioTranscriptionRequest,
) (*AudioTranscriptionResponse, error) {
	if req == nil {
		return nil, NewError(ErrorTypeInvalidRequest, StatusCode(http.StatusBadRequest), "request cannot be nil")
	}

	if req.Model == "" {
		req.Model = DefaultAudioModel
	}

	resp, provider, err := dispatch(ctx, g, req.Model,
		func(ctx context.Context, t Translator) (*AudioTranscriptionResponse, error) {
			return t.AudioTranscription(ctx, req)
		})
	if err != nil {
		return nil, err
	}

	resp.Provider = provider
	return resp, nil
}

// operation invokes one translator method.
type operation[T any] func(ctx context.Context, t Translator) (*T, error)

type attemptResult[T any] struct {
	resp *T
	err  error
}

// dispatch runs the attempt loop for one logical request and returns the
// response together with the name of the provider that served it.
func dispatch[T any](ctx context.Context, g *GatewayService, model string, op operation[T]) (*T, string, error) {
	logger := observability.FromContext(ctx)
	tried := make(map[string]struct{}, g.settings.MaxRetries+1)

	var lastErr error

	for attempt := 0; attempt <= g.settings.MaxRetries; attempt++ {
		provider, ok, err := g.selectProvider(ctx, model, attempt, tried)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			break
		}

		tried[provider.Name] = struct{}{}

		attemptCtx := observability.WithAttempt(observability.WithProvider(ctx, provider.Name), attempt)

		resp, err := runAttempt(attemptCtx, g, provider, model, op)
		if err == nil {
			g.publish(attemptCtx, observability.EventDispatchServed, map[string]any{
				"attempts": attempt + 1,
			})
			return resp, provider.Name, nil
		}

		// The client went away; no other provider can help.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", NewError(ErrorTypeTimeout, SymbolCode(CodeTimeout), "request cancelled: %v", ctxErr)
		}

		envelope := AsError(err)
		lastErr = envelope

		g.publish(attemptCtx, observability.EventAttemptFailed, map[string]any{
			"error_type": string(envelope.Type),
			"error_code": envelope.Code.String(),
			"message":    envelope.Message,
		})

		if !IsRetriable(envelope) {
			g.publish(attemptCtx, observability.EventDispatchFatal, map[string]any{
				"error_type": string(envelope.Type),
			})
			return nil, "", envelope
		}

		g.cooldowns.Put(provider.Name, g.settings.CooldownDuration)
		g.publish(attemptCtx, observability.EventCooldownApplied, map[string]any{
			"cooldown": g.settings.CooldownDuration.String(),
		})
	}

	logger.Warn("all dispatch attempts failed",
		observability.String("model", model),
		observability.Int("providers_tried", len(tried)),
		observability.Error(lastErr))

	g.publish(ctx, observability.EventRetriesExceeded, map[string]any{
		"model":           model,
		"providers_tried": len(tried),
	})

	if lastErr == nil {
		lastErr = ErrNoProviderAvailable
	}

	return nil, "", lastErr
}

// selectProvider returns the provider for this attempt. A false result means
// the candidates ran out and the loop should stop.
func (g *GatewayService) selectProvider(
	ctx context.Context,
	model string,
	attempt int,
	tried map[string]struct{},
) (ProviderConfig, bool, error) {
	if attempt == 0 {
		provider, err := g.selector.SelectInitial(ctx, model)
		if err != nil {
			var envelope *Error
			if errors.As(err, &envelope) {
				return ProviderConfig{}, false, envelope
			}
			return ProviderConfig{}, false, &Error{
				Message: err.Error(),
				Type:    ErrorTypeInvalidRequest,
				Code:    StatusCode(http.StatusBadRequest),
				Cause:   err,
			}
		}
		return provider, true, nil
	}

	provider, ok := g.selector.SelectNext(ctx, model, tried)
	return provider, ok, nil
}

// attemptTimeout resolves the deadline for one attempt: the per-model
// override, then the provider's own timeout, then the default. Translator
// clients carry no timeout of their own, so this is the only deadline.
func attemptTimeout(settings Settings, provider ProviderConfig, model string) time.Duration {
	if timeout, ok := settings.ModelTimeouts[model]; ok && timeout > 0 {
		return timeout
	}
	if settings.ModelTimeout != nil {
		if timeout, ok := settings.ModelTimeout(model); ok && timeout > 0 {
			return timeout
		}
	}
	if provider.Timeout > 0 {
		return provider.Timeout
	}
	return settings.DefaultTimeout
}

// runAttempt runs one translator call raced against the attempt timeout. The
// loser is cancelled through the context; its result lands in a buffered
// channel and is dropped.
func runAttempt[T any](ctx context.Context, g *GatewayService, provider ProviderConfig, model string, op operation[T]) (*T, error) {
	translator, err := g.translators.New(provider)
	if err != nil {
		return nil, NewError(ErrorTypeInternal, Code{}, "translator for provider %q: %v", provider.Name, err)
	}

	timeout := attemptTimeout(g.settings, provider, model)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	results := make(chan attemptResult[T], 1)
	go func() {
		resp, callErr := op(callCtx, translator)
		results <- attemptResult[T]{resp: resp, err: callErr}
	}()

	select {
	case res := <-results:
		if res.err == nil && res.resp == nil {
			return nil, NewError(ErrorTypeProvider, Code{}, "provider %q returned an empty response", provider.Name)
		}
		return res.resp, res.err
	case <-timer:
		observability.FromContext(ctx).Warn("provider attempt timed out",
			observability.Duration("timeout", timeout))
		return nil, NewError(ErrorTypeTimeout, SymbolCode(CodeTimeout),
			"request to provider %s timed out after %s", provider.Name, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GatewayService) publish(ctx context.Context, eventType string, data map[string]any) {
	if g.events == nil {
		return
	}
	g.events.Publish(ctx, eventType, data)
}
