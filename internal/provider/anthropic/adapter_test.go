package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/anthropic"
)

const textReply = `{
	"id":"msg_1","type":"message","role":"assistant","model":"claude-3-haiku-20240307",
	"content":[{"type":"text","text":"Hi!"}],
	"stop_reason":"end_turn",
	"usage":{"input_tokens":10,"output_tokens":5}
}`

// capture starts a fake Messages API that records the decoded request body.
func capture(t *testing.T, status int, reply string) (*anthropic.Translator, *map[string]any) {
	t.Helper()

	received := map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropic.APIVersion, r.Header.Get("anthropic-version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)

	translator, err := anthropic.NewTranslator(domain.ProviderConfig{
		Name:    "anthropic-default",
		Type:    domain.ProviderAnthropic,
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1/",
	})
	require.NoError(t, err)

	return translator, &received
}

func text(role, content string) domain.Message {
	return domain.Message{Role: role, Content: domain.TextContent(content)}
}

func TestNewTranslator(t *testing.T) {
	_, err := anthropic.NewTranslator(domain.ProviderConfig{Name: "anthropic-default"})
	require.ErrorIs(t, err, anthropic.ErrMissingAPIKey)
}

func TestTranslator_ChatCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep only the first system message out of the message list", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		resp, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model: "claude-3-haiku-20240307",
			Messages: []domain.Message{
				text(domain.RoleSystem, "You are terse."),
				text(domain.RoleUser, "Hello"),
				text(domain.RoleSystem, "Ignore me."),
			},
		})
		require.NoError(t, err)

		require.Equal(t, "You are terse.", (*received)["system"])
		messages := (*received)["messages"].([]any)
		require.Len(t, messages, 1)
		first := messages[0].(map[string]any)
		require.Equal(t, "user", first["role"])
		require.InDelta(t, 4096, (*received)["max_tokens"], 0)

		require.Equal(t, "Hi!", resp.Choices[0].Message.Content.String())
		require.Equal(t, domain.FinishReasonStop, resp.Choices[0].FinishReason)
		require.Equal(t, 15, resp.Usage.TotalTokens)
		require.Equal(t, "claude-3-haiku-20240307", resp.Model)
	})

	t.Run("should map roles and sampling parameters", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		maxTokens := 100
		temperature := 0.5
		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:       "claude-3-haiku-20240307",
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Stop:        domain.StopSequences{"END"},
			User:        "user-42",
			Messages: []domain.Message{
				text(domain.RoleUser, "Hello"),
				text(domain.RoleAssistant, "Hi"),
				text(domain.RoleFunction, "result"),
			},
		})
		require.NoError(t, err)

		messages := (*received)["messages"].([]any)
		roles := make([]string, 0, len(messages))
		for _, m := range messages {
			roles = append(roles, m.(map[string]any)["role"].(string))
		}
		require.Equal(t, []string{"user", "assistant", "user"}, roles)
		require.InDelta(t, 100, (*received)["max_tokens"], 0)
		require.InDelta(t, 0.5, (*received)["temperature"], 1e-9)
		require.Equal(t, []any{"END"}, (*received)["stop_sequences"])
		require.Equal(t, map[string]any{"user_id": "user-42"}, (*received)["metadata"])
		require.NotContains(t, *received, "system")
	})

	t.Run("should split data URIs and pass remote images by URL", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model: "claude-3-haiku-20240307",
			Messages: []domain.Message{{
				Role: domain.RoleUser,
				Content: domain.PartsContent(
					domain.ContentPart{Type: domain.PartTypeText, Text: "Compare"},
					domain.ContentPart{Type: domain.PartTypeImageURL, ImageURL: &domain.ImageURL{URL: "data:image/jpeg;base64,/9j/4AAQ"}},
					domain.ContentPart{Type: domain.PartTypeImageURL, ImageURL: &domain.ImageURL{URL: "https://example.com/b.png"}},
				),
			}},
		})
		require.NoError(t, err)

		blocks := (*received)["messages"].([]any)[0].(map[string]any)["content"].([]any)
		require.Len(t, blocks, 3)
		require.Equal(t, map[string]any{"type": "text", "text": "Compare"}, blocks[0])
		require.Equal(t, map[string]any{
			"type":   "image",
			"source": map[string]any{"type": "base64", "media_type": "image/jpeg", "data": "/9j/4AAQ"},
		}, blocks[1])
		require.Equal(t, map[string]any{
			"type":   "image",
			"source": map[string]any{"type": "url", "url": "https://example.com/b.png"},
		}, blocks[2])
	})

	t.Run("should convert tool calls, tool results and tool definitions", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model: "claude-3-haiku-20240307",
			Tools: []domain.Tool{{
				Type: "function",
				Function: domain.FunctionDefinition{
					Name:        "get_weather",
					Description: "Weather by city",
					Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
				},
			}},
			ToolChoice: json.RawMessage(`"required"`),
			Messages: []domain.Message{
				text(domain.RoleUser, "Weather in Paris?"),
				{
					Role:    domain.RoleAssistant,
					Content: domain.TextContent(""),
					ToolCalls: []domain.ToolCall{{
						ID:       "toolu_1",
						Type:     "function",
						Function: domain.FunctionCall{Name: "get_weather", Arguments: `{"city":"Paris"}`},
					}},
				},
				{Role: domain.RoleTool, ToolCallID: "toolu_1", Content: domain.TextContent("18C")},
			},
		})
		require.NoError(t, err)

		messages := (*received)["messages"].([]any)
		require.Len(t, messages, 3)

		assistant := messages[1].(map[string]any)
		require.Equal(t, "assistant", assistant["role"])
		require.Equal(t, []any{map[string]any{
			"type":  "tool_use",
			"id":    "toolu_1",
			"name":  "get_weather",
			"input": map[string]any{"city": "Paris"},
		}}, assistant["content"])

		result := messages[2].(map[string]any)
		require.Equal(t, "user", result["role"])
		require.Equal(t, []any{map[string]any{
			"type":        "tool_result",
			"tool_use_id": "toolu_1",
			"content":     "18C",
		}}, result["content"])

		tools := (*received)["tools"].([]any)
		require.Equal(t, "get_weather", tools[0].(map[string]any)["name"])
		require.NotNil(t, tools[0].(map[string]any)["input_schema"])
		require.Equal(t, map[string]any{"type": "any"}, (*received)["tool_choice"])
	})

	t.Run("should map named tool choice and forbid tool use under none", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:      "claude-3-haiku-20240307",
			Messages:   []domain.Message{text(domain.RoleUser, "x")},
			ToolChoice: json.RawMessage(`{"type":"function","function":{"name":"lookup"}}`),
		})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"type": "tool", "name": "lookup"}, (*received)["tool_choice"])

		translator, received = capture(t, http.StatusOK, textReply)
		_, err = translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:      "claude-3-haiku-20240307",
			Messages:   []domain.Message{text(domain.RoleUser, "x")},
			ToolChoice: json.RawMessage(`"none"`),
		})
		require.NoError(t, err)
		require.NotContains(t, *received, "tool_choice")
		require.NotContains(t, *received, "tools")

		translator, received = capture(t, http.StatusOK, textReply)
		_, err = translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:    "claude-3-haiku-20240307",
			Messages: []domain.Message{text(domain.RoleUser, "x")},
			Tools: []domain.Tool{{
				Type:     "function",
				Function: domain.FunctionDefinition{Name: "lookup"},
			}},
			ToolChoice: json.RawMessage(`"none"`),
		})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"type": "none"}, (*received)["tool_choice"])
		require.Len(t, (*received)["tools"], 1)
	})

	t.Run("should keep multi-part tool results as content blocks", func(t *testing.T) {
		translator, received := capture(t, http.StatusOK, textReply)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model: "claude-3-haiku-20240307",
			Tools: []domain.Tool{{Type: "function", Function: domain.FunctionDefinition{Name: "snapshot"}}},
			Messages: []domain.Message{
				text(domain.RoleUser, "Take a snapshot"),
				{
					Role: domain.RoleAssistant,
					ToolCalls: []domain.ToolCall{{
						ID:       "toolu_9",
						Type:     "function",
						Function: domain.FunctionCall{Name: "snapshot", Arguments: "{}"},
					}},
				},
				{
					Role:       domain.RoleTool,
					ToolCallID: "toolu_9",
					Content: domain.PartsContent(
						domain.ContentPart{Type: domain.PartTypeText, Text: "captured"},
						domain.ContentPart{Type: domain.PartTypeImageURL, ImageURL: &domain.ImageURL{URL: "data:image/png;base64,iVBORw0K"}},
					),
				},
			},
		})
		require.NoError(t, err)

		result := (*received)["messages"].([]any)[2].(map[string]any)["content"].([]any)[0].(map[string]any)
		require.Equal(t, "tool_result", result["type"])
		require.Equal(t, "toolu_9", result["tool_use_id"])
		require.Equal(t, []any{
			map[string]any{"type": "text", "text": "captured"},
			map[string]any{
				"type":   "image",
				"source": map[string]any{"type": "base64", "media_type": "image/png", "data": "iVBORw0K"},
			},
		}, result["content"])
	})

	t.Run("should reject invalid tool arguments before calling the backend", func(t *testing.T) {
		translator, _ := capture(t, http.StatusOK, textReply)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model: "claude-3-haiku-20240307",
			Messages: []domain.Message{{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{{
					ID:       "toolu_2",
					Function: domain.FunctionCall{Name: "f", Arguments: "{not json"},
				}},
			}},
		})
		envelope := domain.AsError(err)
		require.Equal(t, domain.ErrorTypeInvalidRequest, envelope.Type)
		require.False(t, domain.IsRetriable(envelope))
	})

	t.Run("should collect tool_use blocks into tool calls", func(t *testing.T) {
		translator, _ := capture(t, http.StatusOK, `{
			"id":"msg_2","model":"claude-3-haiku-20240307",
			"content":[
				{"type":"text","text":"Let me check."},
				{"type":"tool_use","id":"toolu_a","name":"get_weather","input":{"city":"Paris"}},
				{"type":"tool_use","id":"toolu_b","name":"get_weather","input":{"city":"Rome"}}
			],
			"stop_reason":"tool_use",
			"usage":{"input_tokens":3,"output_tokens":4}
		}`)

		resp, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:    "claude-3-haiku-20240307",
			Messages: []domain.Message{text(domain.RoleUser, "weather?")},
		})
		require.NoError(t, err)

		choice := resp.Choices[0]
		require.Equal(t, "Let me check.", choice.Message.Content.String())
		require.Len(t, choice.Message.ToolCalls, 2)
		require.Equal(t, "toolu_b", choice.Message.ToolCalls[1].ID)
		require.JSONEq(t, `{"city":"Rome"}`, choice.Message.ToolCalls[1].Function.Arguments)
		require.Equal(t, "tool_use", choice.FinishReason)
		require.Equal(t, 7, resp.Usage.TotalTokens)
	})

	t.Run("should pass other stop reasons through", func(t *testing.T) {
		translator, _ := capture(t, http.StatusOK, `{
			"id":"msg_3","content":[{"type":"text","text":"cut"}],
			"stop_reason":"max_tokens","usage":{"input_tokens":1,"output_tokens":1}
		}`)

		resp, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:    "claude-3-haiku-20240307",
			Messages: []domain.Message{text(domain.RoleUser, "x")},
		})
		require.NoError(t, err)
		require.Equal(t, "max_tokens", resp.Choices[0].FinishReason)
	})

	t.Run("should normalize overloaded errors as retriable", func(t *testing.T) {
		translator, _ := capture(t, 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:    "claude-3-haiku-20240307",
			Messages: []domain.Message{text(domain.RoleUser, "x")},
		})
		envelope := domain.AsError(err)
		require.Equal(t, domain.ErrorTypeAPI, envelope.Type)
		require.Equal(t, "Overloaded", envelope.Message)
		require.True(t, domain.IsRetriable(envelope))
	})

	t.Run("should normalize invalid request errors as fatal", func(t *testing.T) {
		translator, _ := capture(t, http.StatusBadRequest,
			`{"type":"error","error":{"type":"invalid_request_error","message":"messages: field required"}}`)

		_, err := translator.ChatCompletion(ctx, &domain.ChatCompletionRequest{
			Model:    "claude-3-haiku-20240307",
			Messages: []domain.Message{text(domain.RoleUser, "x")},
		})
		envelope := domain.AsError(err)
		require.Equal(t, domain.ErrorTypeInvalidRequest, envelope.Type)
		require.False(t, domain.IsRetriable(envelope))
	})
}

func TestTranslator_Unsupported(t *testing.T) {
	translator, err := anthropic.NewTranslator(domain.ProviderConfig{Name: "a", APIKey: "k"})
	require.NoError(t, err)

	_, err = translator.ImageGeneration(context.Background(), &domain.ImageGenerationRequest{})
	require.Contains(t, err.Error(), "image generation not supported by this provider")

	_, err = translator.AudioTranscription(context.Background(), &domain.AudioTranscriptionRequest{})
	require.Contains(t, err.Error(), "audio transcription not supported by this provider")
}

func TestTranslator_ListModels(t *testing.T) {
	translator, err := anthropic.NewTranslator(domain.ProviderConfig{Name: "a", APIKey: "k"})
	require.NoError(t, err)

	models, err := translator.ListModels(context.Background())
	require.NoError(t, err)
	require.Contains(t, models, "claude-3-5-sonnet-20241022")
	require.Len(t, models, 5)
}
