package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/common"
)

const (
	roleModel = "model"
	roleUser  = "user"
)

var finishReasons = map[string]string{
	"STOP":       domain.FinishReasonStop,
	"MAX_TOKENS": domain.FinishReasonLength,
	"SAFETY":     domain.FinishReasonContentFilter,
	"RECITATION": domain.FinishReasonContentFilter,
	"OTHER":      domain.FinishReasonStop,
}

// toGenerateRequest builds the native request. The first system message
// becomes systemInstruction; later ones are dropped.
func toGenerateRequest(req *domain.ChatCompletionRequest) (*generateRequest, error) {
	out := &generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			if out.SystemInstruction == nil {
				out.SystemInstruction = &content{Parts: []part{{Text: msg.Content.Text()}}}
			}
			continue
		}

		converted, err := toContent(msg)
		if err != nil {
			return nil, err
		}
		out.Contents = append(out.Contents, converted)
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || len(req.Stop) > 0 || req.N != nil {
		out.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
			CandidateCount:  req.N,
		}
	}

	if len(req.Tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			declarations = append(declarations, functionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		out.Tools = []toolBlock{{FunctionDeclarations: declarations}}
	}

	return out, nil
}

func toContent(msg domain.Message) (content, error) {
	role := roleUser
	if msg.Role == domain.RoleAssistant {
		role = roleModel
	}

	if msg.ToolCallID != "" {
		name := msg.Name
		if name == "" {
			name = msg.ToolCallID
		}
		return content{
			Role: roleUser,
			Parts: []part{{
				FunctionResponse: &functionResponse{Name: name, Response: toolResponse(msg.Content.Text())},
			}},
		}, nil
	}

	parts := textAndImageParts(msg.Content)

	for _, call := range msg.ToolCalls {
		args := bytes.TrimSpace([]byte(call.Function.Arguments))
		if len(args) == 0 {
			args = []byte("{}")
		}
		if !json.Valid(args) {
			return content{}, domain.NewError(domain.ErrorTypeInvalidRequest, domain.StatusCode(http.StatusBadRequest),
				"tool call %s has invalid JSON arguments", call.ID)
		}
		parts = append(parts, part{FunctionCall: &functionCall{Name: call.Function.Name, Args: args}})
	}

	return content{Role: role, Parts: parts}, nil
}

func textAndImageParts(c domain.MessageContent) []part {
	if !c.IsMultiPart() {
		if c.String() == "" {
			return []part{}
		}
		return []part{{Text: c.String()}}
	}

	parts := make([]part, 0, len(c.Parts()))
	for _, p := range c.Parts() {
		switch p.Type {
		case domain.PartTypeText:
			parts = append(parts, part{Text: p.Text})
		case domain.PartTypeImageURL:
			if p.ImageURL == nil {
				continue
			}
			// Remote URLs cannot be inlined; only base64 data URIs are forwarded.
			if mediaType, data, ok := common.ParseImageDataURI(p.ImageURL.URL); ok {
				parts = append(parts, part{InlineData: &inlineData{MimeType: mediaType, Data: data}})
			}
		}
	}
	return parts
}

// toolResponse keeps JSON objects as they are and wraps anything else.
func toolResponse(text string) json.RawMessage {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}

	wrapped, _ := json.Marshal(map[string]string{"content": text})
	return wrapped
}

func toChatResponse(resp *generateResponse, model string, now time.Time) (*domain.ChatCompletionResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, domain.NewError(domain.ErrorTypeProvider, domain.Code{}, "no candidate in Gemini response")
	}

	first := resp.Candidates[0]

	var text strings.Builder
	var toolCalls []domain.ToolCall
	for _, p := range first.Content.Parts {
		switch {
		case p.Text != "":
			text.WriteString(p.Text)
		case p.FunctionCall != nil:
			args := string(p.FunctionCall.Args)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, domain.ToolCall{
				ID:       toolCallID(now),
				Type:     "function",
				Function: domain.FunctionCall{Name: p.FunctionCall.Name, Arguments: args},
			})
		}
	}

	finishReason, ok := finishReasons[first.FinishReason]
	if !ok {
		finishReason = domain.FinishReasonStop
	}

	var usage domain.Usage
	if resp.UsageMetadata != nil {
		usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	return &domain.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", now.UnixMilli()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []domain.Choice{{
			Index: 0,
			Message: domain.Message{
				Role:      domain.RoleAssistant,
				Content:   domain.TextContent(text.String()),
				ToolCalls: toolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: usage,
	}, nil
}

// toolCallID synthesizes call_<unix millis>_<9 random characters>.
func toolCallID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("call_%d_%s", now.UnixMilli(), suffix)
}
