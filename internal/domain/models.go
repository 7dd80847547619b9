package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message roles used by the unified schema.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// Normalized finish reasons.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonToolCalls     = "tool_calls"
)

// Default models for requests that omit one.
const (
	DefaultImageModel = "dall-e-3"
	DefaultAudioModel = "whisper-1"
)

// Content part types.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ChatCompletionRequest represents a unified (OpenAI-compatible) chat request.
type ChatCompletionRequest struct {
	Model            string             `json:"model"`
	Messages         []Message          `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	N                *int               `json:"n,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	Stop             StopSequences      `json:"stop,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`
	Tools            []Tool             `json:"tools,omitempty"`
	ToolChoice       json.RawMessage    `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat    `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role       string         `json:"role"` // system, user, assistant, tool, function
	Content    MessageContent `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// MessageContent is either plain text or an ordered list of typed parts.
type MessageContent struct {
	text  string
	parts []ContentPart
	multi bool
}

// TextContent builds plain-text message content.
func TextContent(text string) MessageContent {
	return MessageContent{text: text}
}

// PartsContent builds multi-part message content.
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{parts: parts, multi: true}
}

// IsMultiPart reports whether the content is a list of parts.
func (c MessageContent) IsMultiPart() bool {
	return c.multi
}

// Parts returns the content parts (nil for plain text).
func (c MessageContent) Parts() []ContentPart {
	return c.parts
}

// String returns the plain text. For multi-part content it returns an empty string.
func (c MessageContent) String() string {
	return c.text
}

// Text flattens the content into text, joining text parts with newlines.
func (c MessageContent) Text() string {
	if !c.multi {
		return c.text
	}

	texts := make([]string, 0, len(c.parts))
	for _, part := range c.parts {
		if part.Type == PartTypeText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// IsEmpty reports whether there is no content at all.
func (c MessageContent) IsEmpty() bool {
	if c.multi {
		return len(c.parts) == 0
	}
	return c.text == ""
}

// MarshalJSON encodes text content as a JSON string and parts as an array.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.multi {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string, an array of parts, or null.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = MessageContent{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("invalid message content: %w", err)
		}
		*c = TextContent(text)
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("invalid message content parts: %w", err)
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return errors.New("message content must be a string or an array of parts")
	}
}

// ContentPart is one typed element of multi-part content.
type ContentPart struct {
	Type     string    `json:"type"` // text, image_url
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by remote URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool is a function definition offered to the model.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a model-issued function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat selects text or JSON output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// StopSequences accepts either a single string or a list of strings.
type StopSequences []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return fmt.Errorf("invalid stop sequence: %w", err)
		}
		*s = StopSequences{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return fmt.Errorf("invalid stop sequences: %w", err)
	}
	*s = list
	return nil
}

// ChatCompletionResponse represents a unified chat response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	// Provider names the configured provider that served the request.
	Provider string `json:"-"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ImageGenerationRequest represents a unified image generation request.
type ImageGenerationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              *int   `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// ImageGenerationResponse represents generated images.
type ImageGenerationResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`

	Provider string `json:"-"`
}

// ImageData is one generated image.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// AudioTranscriptionRequest represents a transcription request.
// The audio bytes are held in memory so each attempt can resend them.
type AudioTranscriptionRequest struct {
	File           []byte
	FileName       string
	Model          string
	Language       string
	Prompt         string
	ResponseFormat string
	Temperature    *float64
}

// AudioTranscriptionResponse represents a transcription result.
type AudioTranscriptionResponse struct {
	Text string `json:"text"`

	Provider string `json:"-"`
}
