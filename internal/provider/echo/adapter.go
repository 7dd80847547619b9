// Package echo provides an offline translator that echoes back input messages.
// It makes no external calls and gives deterministic responses, which makes it
// handy for smoke-testing routing and failover locally.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/common"
)

// Translator implements domain.Translator without a backend.
type Translator struct {
	name string
}

// NewTranslator creates an echo translator. No credential is required.
func NewTranslator(cfg domain.ProviderConfig) *Translator {
	name := cfg.Name
	if name == "" {
		name = string(domain.ProviderEcho)
	}

	return &Translator{name: name}
}

// Name returns the provider identifier.
func (t *Translator) Name() string {
	return t.name
}

// ChatCompletion returns the request messages as the assistant reply.
func (t *Translator) ChatCompletion(
	ctx context.Context,
	req *domain.ChatCompletionRequest,
) (*domain.ChatCompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if err := ctx.Err(); err != nil {
		return nil, common.FromTransportError(err)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := buildEchoContent(req.Messages)

	// Count tokens (simple word-based counting)
	promptTokens := countTokens(echoContent)
	completionTokens := promptTokens // Echo returns same size

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", promptTokens),
		observability.Int("completion_tokens", completionTokens),
	)

	return &domain.ChatCompletionResponse{
		ID:      "chatcmpl-echo-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []domain.Choice{{
			Index: 0,
			Message: domain.Message{
				Role:    domain.RoleAssistant,
				Content: domain.TextContent(echoContent),
			},
			FinishReason: domain.FinishReasonStop,
		}},
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// ImageGeneration is not offered by the echo backend.
func (t *Translator) ImageGeneration(
	context.Context,
	*domain.ImageGenerationRequest,
) (*domain.ImageGenerationResponse, error) {
	return nil, common.NotSupported(common.OperationImageGeneration)
}

// AudioTranscription is not offered by the echo backend.
func (t *Translator) AudioTranscription(
	context.Context,
	*domain.AudioTranscriptionRequest,
) (*domain.AudioTranscriptionResponse, error) {
	return nil, common.NotSupported(common.OperationAudioTranscription)
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content.Text()))
	}
	return builder.String()
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
