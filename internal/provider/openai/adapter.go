// Package openai translates the unified schema for OpenAI-compatible
// backends (OpenAI, Groq, OpenRouter, xAI, 302.AI) using the official SDK.
// Requests already match the wire format, so chat and image calls are posted
// close to verbatim; transcription goes through the SDK's multipart encoder.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/common"
)

// Translator implements domain.Translator for OpenAI-compatible providers.
type Translator struct {
	client openai.Client
	name   string
}

// NewTranslator creates a translator bound to one configured provider.
func NewTranslator(cfg domain.ProviderConfig, opts ...option.RequestOption) (*Translator, error) {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}

	return &Translator{
		client: client,
		name:   cfg.Name,
	}, nil
}

// Name returns the provider identifier.
func (t *Translator) Name() string {
	return t.name
}

// ChatCompletion posts the unified request to chat/completions.
func (t *Translator) ChatCompletion(
	ctx context.Context,
	req *domain.ChatCompletionRequest,
) (*domain.ChatCompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI-compatible chat API")

	body := *req
	body.Stream = false

	var (
		resp     domain.ChatCompletionResponse
		httpResp *http.Response
	)
	err := t.client.Post(ctx, "chat/completions", body, &resp, option.WithResponseInto(&httpResp))
	if err != nil {
		logger.Debug("OpenAI-compatible chat API call failed", observability.Error(err))
		return nil, NormalizeError(err, httpResp)
	}

	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	logger.Debug("OpenAI-compatible chat API call succeeded",
		observability.Int("prompt_tokens", resp.Usage.PromptTokens),
		observability.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &resp, nil
}

// ImageGeneration posts to images/generations, defaulting the model.
func (t *Translator) ImageGeneration(
	ctx context.Context,
	req *domain.ImageGenerationRequest,
) (*domain.ImageGenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	body := *req
	if body.Model == "" {
		body.Model = domain.DefaultImageModel
	}

	var (
		resp     domain.ImageGenerationResponse
		httpResp *http.Response
	)
	if err := t.client.Post(ctx, "images/generations", body, &resp, option.WithResponseInto(&httpResp)); err != nil {
		return nil, NormalizeError(err, httpResp)
	}

	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}

	return &resp, nil
}

// AudioTranscription uploads the audio as multipart form data. Text formats
// (text, srt, vtt) are returned verbatim; JSON formats yield their text field.
func (t *Translator) AudioTranscription(
	ctx context.Context,
	req *domain.AudioTranscriptionRequest,
) (*domain.AudioTranscriptionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	params := transcriptionParams(req)

	var (
		raw      []byte
		httpResp *http.Response
	)
	if err := t.client.Post(ctx, "audio/transcriptions", params, &raw, option.WithResponseInto(&httpResp)); err != nil {
		return nil, NormalizeError(err, httpResp)
	}

	text, err := transcriptionText(raw, httpResp)
	if err != nil {
		return nil, common.InvalidResponse(err)
	}

	return &domain.AudioTranscriptionResponse{Text: text}, nil
}

func transcriptionParams(req *domain.AudioTranscriptionRequest) openai.AudioTranscriptionNewParams {
	model := req.Model
	if model == "" {
		model = domain.DefaultAudioModel
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = "audio"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(req.File), fileName, mime.TypeByExtension(extension(fileName))),
		Model: openai.AudioModel(model),
	}

	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.ResponseFormat != "" {
		params.ResponseFormat = openai.AudioResponseFormat(req.ResponseFormat)
	}

	return params
}

func transcriptionText(raw []byte, httpResp *http.Response) (string, error) {
	isJSON := false
	if httpResp != nil {
		mediaType, _, _ := mime.ParseMediaType(httpResp.Header.Get("Content-Type"))
		isJSON = strings.Contains(mediaType, "json")
	}

	if !isJSON {
		return string(raw), nil
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return decoded.Text, nil
}

func extension(fileName string) string {
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		return fileName[i:]
	}
	return ""
}

// NormalizeError turns SDK failures into the normalized envelope. The SDK
// only produces *openai.Error when the body carries an "error" object, so
// other non-success responses are parsed from the captured response.
func NormalizeError(err error, httpResp *http.Response) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}

		errType := domain.ErrorType(apiErr.Type)
		if !errType.IsKnown() {
			errType = domain.ErrorTypeForStatus(apiErr.StatusCode)
		}

		return &domain.Error{
			Message: message,
			Type:    errType,
			Code:    domain.StatusCode(apiErr.StatusCode),
			Cause:   err,
		}
	}

	if httpResp != nil && httpResp.StatusCode >= http.StatusBadRequest {
		var body []byte
		if httpResp.Body != nil {
			body, _ = io.ReadAll(httpResp.Body)
		}
		envelope := common.FromHTTPStatus(httpResp.StatusCode, body)
		envelope.Cause = err
		return envelope
	}

	return common.FromTransportError(err)
}

// ListModels returns the model ids the backend advertises on /models.
func (t *Translator) ListModels(ctx context.Context) ([]string, error) {
	var httpResp *http.Response
	page, err := t.client.Models.List(ctx, option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, NormalizeError(err, httpResp)
	}

	ids := make([]string, 0, len(page.Data))
	for _, model := range page.Data {
		ids = append(ids, model.ID)
	}
	return ids, nil
}
