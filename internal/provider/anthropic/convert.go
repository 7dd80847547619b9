package anthropic

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/common"
)

const (
	defaultMaxTokens = 4096
	stopEndTurn      = "end_turn"
	emptySchema      = `{"type":"object","properties":{}}`
)

// toMessagesRequest builds the native request. Only the first system message
// is kept; later ones are dropped.
func toMessagesRequest(req *domain.ChatCompletionRequest) (*messagesRequest, error) {
	out := &messagesRequest{
		Model:         req.Model,
		Messages:      make([]message, 0, len(req.Messages)),
		MaxTokens:     defaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		out.MaxTokens = *req.MaxTokens
	}

	if req.User != "" {
		out.Metadata = &metadata{UserID: req.User}
	}

	systemSeen := false
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			if !systemSeen {
				out.System = msg.Content.Text()
				systemSeen = true
			}
			continue
		}

		converted, err := toMessage(msg)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, converted)
	}

	for _, t := range req.Tools {
		schema := t.Function.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(emptySchema)
		}
		out.Tools = append(out.Tools, tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}

	choice, err := toToolChoice(req.ToolChoice)
	if err != nil {
		return nil, err
	}
	if choice != nil && choice.Type == "none" && len(out.Tools) == 0 {
		choice = nil
	}
	out.ToolChoice = choice

	return out, nil
}

func toMessage(msg domain.Message) (message, error) {
	role := domain.RoleUser
	if msg.Role == domain.RoleAssistant {
		role = domain.RoleAssistant
	}

	if msg.ToolCallID != "" {
		var content any
		if msg.Content.IsMultiPart() {
			content = contentBlocks(msg.Content)
		} else if text := msg.Content.String(); text != "" {
			content = text
		}
		return message{
			Role: domain.RoleUser,
			Content: []contentBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   content,
			}},
		}, nil
	}

	blocks := contentBlocks(msg.Content)

	for _, call := range msg.ToolCalls {
		input, err := toolInput(call)
		if err != nil {
			return message{}, err
		}
		blocks = append(blocks, contentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}

	return message{Role: role, Content: blocks}, nil
}

func contentBlocks(content domain.MessageContent) []contentBlock {
	if !content.IsMultiPart() {
		if content.String() == "" {
			return []contentBlock{}
		}
		return []contentBlock{{Type: "text", Text: content.String()}}
	}

	blocks := make([]contentBlock, 0, len(content.Parts()))
	for _, part := range content.Parts() {
		switch part.Type {
		case domain.PartTypeText:
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case domain.PartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			if block, ok := imageBlock(part.ImageURL.URL); ok {
				blocks = append(blocks, block)
			}
		}
	}
	return blocks
}

// imageBlock splits data URIs into base64 sources and passes remote URLs by
// reference. Data URIs that are not base64 images are skipped.
func imageBlock(url string) (contentBlock, bool) {
	if !common.IsDataURI(url) {
		return contentBlock{Type: "image", Source: &imageSource{Type: "url", URL: url}}, true
	}

	mediaType, data, ok := common.ParseImageDataURI(url)
	if !ok {
		return contentBlock{}, false
	}

	return contentBlock{
		Type:   "image",
		Source: &imageSource{Type: "base64", MediaType: mediaType, Data: data},
	}, true
}

func toolInput(call domain.ToolCall) (json.RawMessage, error) {
	args := bytes.TrimSpace([]byte(call.Function.Arguments))
	if len(args) == 0 {
		return json.RawMessage("{}"), nil
	}

	if !json.Valid(args) {
		return nil, domain.NewError(domain.ErrorTypeInvalidRequest, domain.StatusCode(http.StatusBadRequest),
			"tool call %s has invalid JSON arguments", call.ID)
	}

	return json.RawMessage(args), nil
}

// toToolChoice maps OpenAI tool_choice onto Anthropic's: auto, none and a
// named function keep their meaning, required becomes any. Tools stay defined
// under none so earlier tool_use and tool_result blocks remain valid.
func toToolChoice(raw json.RawMessage) (*toolChoice, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "auto":
			return &toolChoice{Type: "auto"}, nil
		case "required":
			return &toolChoice{Type: "any"}, nil
		case "none":
			return &toolChoice{Type: "none"}, nil
		default:
			return nil, nil
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Function.Name == "" {
		return nil, domain.NewError(domain.ErrorTypeInvalidRequest, domain.StatusCode(http.StatusBadRequest),
			"unsupported tool_choice")
	}

	return &toolChoice{Type: "tool", Name: named.Function.Name}, nil
}

// toChatResponse maps the native reply. Message text comes from the first
// block when it is text; every tool_use block becomes a tool call.
func toChatResponse(resp *messagesResponse, model string) *domain.ChatCompletionResponse {
	msg := domain.Message{Role: domain.RoleAssistant, Content: domain.TextContent("")}

	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		msg.Content = domain.TextContent(resp.Content[0].Text)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		args := string(block.Input)
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:       block.ID,
			Type:     "function",
			Function: domain.FunctionCall{Name: block.Name, Arguments: args},
		})
	}

	finishReason := resp.StopReason
	if finishReason == stopEndTurn || finishReason == "" {
		finishReason = domain.FinishReasonStop
	}

	return &domain.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReason,
		}},
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}
