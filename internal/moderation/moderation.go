// Package moderation screens request text with the OpenAI moderation API.
// Every failure is treated as "not flagged".
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	provider "github.com/davidbz/hearth/internal/provider/openai"
)

// ErrNotConfigured is returned by Proxy when no moderation key is set.
var ErrNotConfigured = errors.New("moderation service not configured")

// Config holds the moderation settings.
type Config struct {
	Enabled     bool          `env:"MODERATION_ENABLED"        envDefault:"false"`
	APIKey      string        `env:"OPENAI_MODERATION_API_KEY"`
	FallbackKey string        `env:"OPENAI_API_KEY"`
	BaseURL     string        `env:"MODERATION_BASE_URL"       envDefault:"https://api.openai.com/v1"`
	Timeout     time.Duration `env:"MODERATION_TIMEOUT"        envDefault:"10s"`
}

// Key returns the dedicated moderation key, or the OpenAI key.
func (c *Config) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return c.FallbackKey
}

// Verdict is the outcome of a moderation check.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Service calls the moderation endpoint.
type Service struct {
	enabled bool
	client  *openai.Client
}

// NewService creates the service. Without a key, checks always pass and
// Proxy reports ErrNotConfigured.
func NewService(cfg *Config, opts ...option.RequestOption) *Service {
	s := &Service{enabled: cfg.Enabled}

	client, err := provider.NewClient(domain.ProviderConfig{
		Name:    "moderation",
		Type:    domain.ProviderOpenAI,
		APIKey:  cfg.Key(),
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}, opts...)
	if err == nil {
		s.client = &client
	}

	return s
}

// Enabled reports whether request screening is switched on.
func (s *Service) Enabled() bool {
	return s.enabled
}

// CheckMessages screens the text of chat messages.
func (s *Service) CheckMessages(ctx context.Context, messages []domain.Message) Verdict {
	return s.CheckText(ctx, MessagesText(messages))
}

// CheckText screens a single text.
func (s *Service) CheckText(ctx context.Context, text string) Verdict {
	if !s.enabled || strings.TrimSpace(text) == "" {
		return Verdict{}
	}

	logger := observability.FromContext(ctx)
	if s.client == nil {
		logger.Warn("moderation enabled but no API key configured")
		return Verdict{}
	}

	resp, err := s.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		logger.Error("moderation check failed", observability.Error(err))
		return Verdict{}
	}

	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}

		categories := flaggedCategories(result.Categories.RawJSON())
		logger.Warn("content flagged by moderation", observability.Strings("categories", categories))
		return Verdict{
			Flagged: true,
			Reason:  "Content violates policy: " + strings.Join(categories, ", "),
		}
	}

	return Verdict{}
}

// Proxy forwards a raw moderation request and returns the raw response.
func (s *Service) Proxy(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	var (
		raw      []byte
		httpResp *http.Response
	)
	if err := s.client.Post(ctx, "moderations", body, &raw, option.WithResponseInto(&httpResp)); err != nil {
		return nil, provider.NormalizeError(err, httpResp)
	}
	return raw, nil
}

// MessagesText joins message text: parts within a message with spaces,
// messages with newlines.
func MessagesText(messages []domain.Message) string {
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		var text string
		if msg.Content.IsMultiPart() {
			parts := make([]string, 0, len(msg.Content.Parts()))
			for _, part := range msg.Content.Parts() {
				if part.Type == domain.PartTypeText {
					parts = append(parts, part.Text)
				}
			}
			text = strings.Join(parts, " ")
		} else {
			text = msg.Content.String()
		}

		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

func flaggedCategories(raw string) []string {
	var categories map[string]bool
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil
	}

	flagged := make([]string, 0, len(categories))
	for name, hit := range categories {
		if hit {
			flagged = append(flagged, name)
		}
	}
	sort.Strings(flagged)
	return flagged
}
