package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/cooldown"
	"github.com/davidbz/hearth/internal/domain"
	gatewayhttp "github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/moderation"
	"github.com/davidbz/hearth/internal/ratelimit"
	"github.com/davidbz/hearth/internal/routing"
)

const (
	openKey       = "sk-open"
	restrictedKey = "sk-gpt-only"
	tightKey      = "sk-tight"
	adminKey      = "sk-admin"
)

// fakeGateway records dispatched requests and replies with canned results.
type fakeGateway struct {
	calls atomic.Int32

	chatErr error

	mu       sync.Mutex
	lastChat *domain.ChatCompletionRequest
	lastImg  *domain.ImageGenerationRequest
	lastAud  *domain.AudioTranscriptionRequest
}

func (g *fakeGateway) Chat(_ context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastChat = req
	g.mu.Unlock()
	if g.chatErr != nil {
		return nil, g.chatErr
	}

	return &domain.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Created: 1700000000,
		Model:   req.Model,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: domain.TextContent("hi")},
			FinishReason: domain.FinishReasonStop,
		}},
		Usage:    domain.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		Provider: "openai-default",
	}, nil
}

func (g *fakeGateway) GenerateImage(
	_ context.Context,
	req *domain.ImageGenerationRequest,
) (*domain.ImageGenerationResponse, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastImg = req
	g.mu.Unlock()
	return &domain.ImageGenerationResponse{
		Created:  1700000000,
		Data:     []domain.ImageData{{URL: "https://img.example/1.png"}},
		Provider: "openai-images",
	}, nil
}

func (g *fakeGateway) Transcribe(
	_ context.Context,
	req *domain.AudioTranscriptionRequest,
) (*domain.AudioTranscriptionResponse, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastAud = req
	g.mu.Unlock()
	return &domain.AudioTranscriptionResponse{Text: "hello world", Provider: "openai-audio"}, nil
}

func (g *fakeGateway) last() (*domain.ChatCompletionRequest, *domain.ImageGenerationRequest, *domain.AudioTranscriptionRequest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastChat, g.lastImg, g.lastAud
}

type fixture struct {
	server    *httptest.Server
	gateway   *fakeGateway
	cooldowns *cooldown.Registry
}

type fixtureOption func(*moderation.Config)

func withModeration(url string) fixtureOption {
	return func(cfg *moderation.Config) {
		cfg.Enabled = true
		cfg.APIKey = "mod-key"
		cfg.BaseURL = url + "/v1"
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	keys := auth.NewStore(&auth.Config{
		AdminKey: adminKey,
		KeyConfigs: []auth.KeyConfig{
			{Key: openKey},
			{Key: restrictedKey, AllowedModels: []string{"gpt-*"}, RateLimit: "10/min"},
			{Key: tightKey, RateLimit: "1/hour"},
		},
	})

	modCfg := &moderation.Config{Enabled: false, BaseURL: "http://127.0.0.1:1/v1", Timeout: time.Second}
	for _, opt := range opts {
		opt(modCfg)
	}

	cooldowns := cooldown.NewRegistry()
	balancer := routing.NewBalancer([]domain.ProviderConfig{
		{Name: "openai-default", Type: domain.ProviderOpenAI, Models: []string{"gpt-4o", "dall-e-3", "whisper-1"}, Enabled: true},
		{Name: "anthropic-default", Type: domain.ProviderAnthropic, Models: []string{"claude-3-haiku"}, Enabled: true},
		{Name: "openrouter-default", Type: domain.ProviderOpenRouter, Models: []string{"meta-llama/llama-3"}, Enabled: true},
	}, cooldowns)

	gateway := &fakeGateway{}
	handler := gatewayhttp.NewHandler(
		gateway,
		keys,
		ratelimit.NewLimiter(ratelimit.NewMemoryStore()),
		moderation.NewService(modCfg),
		cooldowns,
		balancer,
	)

	srv := gatewayhttp.NewServer(&config.ServerConfig{Port: 0}, handler, nil)
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	return &fixture{server: server, gateway: gateway, cooldowns: cooldowns}
}

func (f *fixture) do(t *testing.T, method, path, key, contentType string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, body)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) postJSON(t *testing.T, path, key, body string) *http.Response {
	t.Helper()
	return f.do(t, http.MethodPost, path, key, "application/json", strings.NewReader(body))
}

type errorReply struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *http.Response) errorReply {
	t.Helper()

	var reply errorReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

const chatBody = `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}]}`

func TestHandleChatCompletions(t *testing.T) {
	t.Run("should dispatch and decorate the response", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/chat/completions", openKey, chatBody)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "openai-default", resp.Header.Get(gatewayhttp.HeaderGatewayProvider))
		require.Equal(t, "60", resp.Header.Get(gatewayhttp.HeaderRateLimitLimit))
		require.Equal(t, "59", resp.Header.Get(gatewayhttp.HeaderRateLimitRemaining))
		require.NotEmpty(t, resp.Header.Get(gatewayhttp.HeaderRateLimitReset))

		var body domain.ChatCompletionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "chatcmpl-1", body.ID)
		require.Equal(t, "hi", body.Choices[0].Message.Content.Text())
		chat, _, _ := f.gateway.last()
		require.Equal(t, "Hello", chat.Messages[0].Content.Text())
	})

	t.Run("should reject other methods", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/chat/completions", openKey, "", nil)

		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
		reply := decodeError(t, resp)
		require.Equal(t, "invalid_request_error", reply.Error.Type)
		require.InDelta(t, 405, reply.Error.Code, 0)
	})

	t.Run("should reject missing and unknown keys", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/chat/completions", "", chatBody)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "authentication_error", decodeError(t, resp).Error.Type)

		resp = f.postJSON(t, "/v1/chat/completions", "sk-nobody", chatBody)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, int32(0), f.gateway.calls.Load())
	})

	t.Run("should enforce the key rate limit", func(t *testing.T) {
		f := newFixture(t)

		first := f.postJSON(t, "/v1/chat/completions", tightKey, chatBody)
		require.Equal(t, http.StatusOK, first.StatusCode)

		second := f.postJSON(t, "/v1/chat/completions", tightKey, chatBody)
		require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
		require.Equal(t, "0", second.Header.Get(gatewayhttp.HeaderRateLimitRemaining))

		reply := decodeError(t, second)
		require.Equal(t, "rate_limit_error", reply.Error.Type)
		require.Equal(t, "Rate limit exceeded", reply.Error.Message)
		require.Equal(t, int32(1), f.gateway.calls.Load())
	})

	t.Run("should validate the body", func(t *testing.T) {
		cases := map[string]string{
			"malformed":      `{"model":`,
			"missing model":  `{"messages":[{"role":"user","content":"hi"}]}`,
			"no messages":    `{"model":"gpt-4o","messages":[]}`,
			"stream request": `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`,
		}

		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				f := newFixture(t)

				resp := f.postJSON(t, "/v1/chat/completions", openKey, body)

				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
				require.Equal(t, "invalid_request_error", decodeError(t, resp).Error.Type)
				require.Equal(t, int32(0), f.gateway.calls.Load())
			})
		}
	})

	t.Run("should deny models outside the allow-list", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/chat/completions", restrictedKey,
			`{"model":"claude-3-haiku","messages":[{"role":"user","content":"hi"}]}`)

		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "permission_error", reply.Error.Type)
		require.Equal(t, "You do not have access to model: claude-3-haiku", reply.Error.Message)
		require.Equal(t, int32(0), f.gateway.calls.Load())
	})

	t.Run("should block flagged content", func(t *testing.T) {
		moderator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"modr-1","model":"omni-moderation-latest","results":[{
				"flagged":true,
				"categories":{"violence":true,"hate":false},
				"category_scores":{"violence":0.9,"hate":0.1}
			}]}`)
		}))
		t.Cleanup(moderator.Close)

		f := newFixture(t, withModeration(moderator.URL))

		resp := f.postJSON(t, "/v1/chat/completions", openKey, chatBody)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "content_policy_violation", reply.Error.Type)
		require.Equal(t, "Content violates policy: violence", reply.Error.Message)
		require.Equal(t, int32(0), f.gateway.calls.Load())
	})

	t.Run("should map dispatch envelopes to their status", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.chatErr = domain.NewError(domain.ErrorTypeAPI, domain.StatusCode(http.StatusServiceUnavailable), "upstream down")

		resp := f.postJSON(t, "/v1/chat/completions", openKey, chatBody)

		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "api_error", reply.Error.Type)
		require.Equal(t, "upstream down", reply.Error.Message)
		require.InDelta(t, 503, reply.Error.Code, 0)
	})

	t.Run("should fall back to 500 for symbolic codes", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.chatErr = domain.NewError(domain.ErrorTypeTimeout, domain.SymbolCode(domain.CodeTimeout), "request timed out")

		resp := f.postJSON(t, "/v1/chat/completions", openKey, chatBody)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "timeout_error", reply.Error.Type)
		require.Equal(t, "timeout", reply.Error.Code)
	})

	t.Run("should wrap plain errors as internal errors", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.chatErr = errors.New("boom")

		resp := f.postJSON(t, "/v1/chat/completions", openKey, chatBody)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "internal_error", reply.Error.Type)
		require.Equal(t, "boom", reply.Error.Message)
		require.Nil(t, reply.Error.Code)
	})
}

func TestHandleImageGenerations(t *testing.T) {
	t.Run("should default the model and dispatch", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/images/generations", openKey, `{"prompt":"a red fox","size":"1024x1024"}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "openai-images", resp.Header.Get(gatewayhttp.HeaderGatewayProvider))
		_, img, _ := f.gateway.last()
		require.Equal(t, domain.DefaultImageModel, img.Model)
		require.Equal(t, "1024x1024", img.Size)

		var body domain.ImageGenerationResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "https://img.example/1.png", body.Data[0].URL)
	})

	t.Run("should require a prompt", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/images/generations", openKey, `{"model":"dall-e-3"}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "Prompt is required", decodeError(t, resp).Error.Message)
	})

	t.Run("should check access against the defaulted model", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/images/generations", restrictedKey, `{"prompt":"a red fox"}`)

		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func multipartBody(t *testing.T, fields map[string]string, withFile bool) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if withFile {
		part, err := writer.CreateFormFile("file", "clip.mp3")
		require.NoError(t, err)
		_, err = part.Write([]byte("ID3-audio-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestHandleAudioTranscriptions(t *testing.T) {
	t.Run("should forward the uploaded file and fields", func(t *testing.T) {
		f := newFixture(t)
		body, contentType := multipartBody(t, map[string]string{
			"language":    "en",
			"temperature": "0.2",
		}, true)

		resp := f.do(t, http.MethodPost, "/v1/audio/transcriptions", openKey, contentType, body)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "openai-audio", resp.Header.Get(gatewayhttp.HeaderGatewayProvider))

		_, _, req := f.gateway.last()
		require.Equal(t, []byte("ID3-audio-bytes"), req.File)
		require.Equal(t, "clip.mp3", req.FileName)
		require.Equal(t, domain.DefaultAudioModel, req.Model)
		require.Equal(t, "en", req.Language)
		require.NotNil(t, req.Temperature)
		require.InDelta(t, 0.2, *req.Temperature, 1e-9)

		var reply domain.AudioTranscriptionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
		require.Equal(t, "hello world", reply.Text)
	})

	t.Run("should require a file", func(t *testing.T) {
		f := newFixture(t)
		body, contentType := multipartBody(t, map[string]string{"model": "whisper-1"}, false)

		resp := f.do(t, http.MethodPost, "/v1/audio/transcriptions", openKey, contentType, body)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "file is required", decodeError(t, resp).Error.Message)
	})

	t.Run("should reject a malformed temperature", func(t *testing.T) {
		f := newFixture(t)
		body, contentType := multipartBody(t, map[string]string{"temperature": "warm"}, true)

		resp := f.do(t, http.MethodPost, "/v1/audio/transcriptions", openKey, contentType, body)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, int32(0), f.gateway.calls.Load())
	})
}

type modelsReply struct {
	Object string `json:"object"`
	Data   []struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func modelIDs(t *testing.T, resp *http.Response) []string {
	t.Helper()

	var reply modelsReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.Equal(t, "list", reply.Object)

	ids := make([]string, 0, len(reply.Data))
	for _, m := range reply.Data {
		require.Equal(t, "model", m.Object)
		ids = append(ids, m.ID)
	}
	return ids
}

func TestHandleModels(t *testing.T) {
	t.Run("should list every model anonymously without rate-limit headers", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models", "", "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Empty(t, resp.Header.Get(gatewayhttp.HeaderRateLimitLimit))
		require.Equal(t,
			[]string{"claude-3-haiku", "dall-e-3", "gpt-4o", "meta-llama/llama-3", "whisper-1"},
			modelIDs(t, resp))
	})

	t.Run("should filter by the key allow-list", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models", restrictedKey, "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "10", resp.Header.Get(gatewayhttp.HeaderRateLimitLimit))
		require.Equal(t, []string{"gpt-4o"}, modelIDs(t, resp))
	})

	t.Run("should reject an invalid key", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models", "sk-nobody", "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should answer HEAD without a body", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodHead, "/v1/models", "", "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Empty(t, body)
	})

	t.Run("should reject writes", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodPost, "/v1/models", "", "", nil)

		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestHandleModel(t *testing.T) {
	t.Run("should describe a served model", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models/gpt-4o", openKey, "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get(gatewayhttp.HeaderRateLimitReset))

		var body struct {
			ID         string `json:"id"`
			Root       string `json:"root"`
			Permission []struct {
				Object        string `json:"object"`
				AllowSampling bool   `json:"allow_sampling"`
			} `json:"permission"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "gpt-4o", body.ID)
		require.Equal(t, "gpt-4o", body.Root)
		require.Len(t, body.Permission, 1)
		require.Equal(t, "model_permission", body.Permission[0].Object)
		require.True(t, body.Permission[0].AllowSampling)
	})

	t.Run("should accept ids containing slashes", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models/meta-llama/llama-3", "", "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("should report unknown models", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models/gpt-9", "", "", nil)

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "Model not found: gpt-9", decodeError(t, resp).Error.Message)
	})

	t.Run("should deny models outside the allow-list", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/v1/models/claude-3-haiku", restrictedKey, "", nil)

		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHandleCooldowns(t *testing.T) {
	t.Run("should require the admin key", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodGet, "/admin/cooldowns", openKey, "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = f.do(t, http.MethodDelete, "/admin/cooldowns/openai-default", "", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should list active cooldowns", func(t *testing.T) {
		f := newFixture(t)
		f.cooldowns.Put("openai-default", time.Minute)

		resp := f.do(t, http.MethodGet, "/admin/cooldowns", adminKey, "", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Object string                 `json:"object"`
			Data   []domain.CooldownEntry `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Data, 1)
		require.Equal(t, "openai-default", body.Data[0].ProviderName)
		require.True(t, body.Data[0].SuppressedUntil.After(time.Now()))
	})

	t.Run("should lift a cooldown once", func(t *testing.T) {
		f := newFixture(t)
		f.cooldowns.Put("openai-default", time.Minute)

		resp := f.do(t, http.MethodDelete, "/admin/cooldowns/openai-default", adminKey, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.False(t, f.cooldowns.IsSuppressed("openai-default"))

		resp = f.do(t, http.MethodDelete, "/admin/cooldowns/openai-default", adminKey, "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should show one provider's cooldown", func(t *testing.T) {
		f := newFixture(t)
		f.cooldowns.Put("anthropic-default", time.Minute)

		resp := f.do(t, http.MethodGet, "/admin/cooldowns/anthropic-default", adminKey, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entry domain.CooldownEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
		require.Equal(t, "anthropic-default", entry.ProviderName)
		require.True(t, entry.SuppressedUntil.After(time.Now()))

		resp = f.do(t, http.MethodGet, "/admin/cooldowns/openai-default", adminKey, "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should reject other methods on a provider", func(t *testing.T) {
		f := newFixture(t)

		resp := f.do(t, http.MethodPost, "/admin/cooldowns/openai-default", adminKey, "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, "GET, DELETE", resp.Header.Get("Allow"))
	})
}

func TestHandleModerations(t *testing.T) {
	t.Run("should proxy the raw body", func(t *testing.T) {
		received := make(chan string, 1)
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			received <- string(raw)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"modr-9","results":[{"flagged":false}]}`)
		}))
		t.Cleanup(backend.Close)

		f := newFixture(t, withModeration(backend.URL))

		resp := f.postJSON(t, "/v1/moderations", openKey, `{"input":"hello there"}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"input":"hello there"}`, <-received)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"modr-9","results":[{"flagged":false}]}`, string(raw))
	})

	t.Run("should require input", func(t *testing.T) {
		f := newFixture(t)

		for _, body := range []string{`{}`, `{"input":""}`, `{"input":null}`, `{"input":[]}`} {
			resp := f.postJSON(t, "/v1/moderations", openKey, body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		}
	})

	t.Run("should report a missing moderation key", func(t *testing.T) {
		f := newFixture(t)

		resp := f.postJSON(t, "/v1/moderations", openKey, `{"input":"hello"}`)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		reply := decodeError(t, resp)
		require.Equal(t, "internal_error", reply.Error.Type)
		require.Equal(t, "Moderation service not configured", reply.Error.Message)
	})
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", "", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
}
