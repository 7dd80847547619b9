package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/moderation"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/ratelimit"
)

// Response headers set by the gateway.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderGatewayProvider    = "X-Gateway-Provider"
)

// Gateway dispatches unified requests to providers.
type Gateway interface {
	Chat(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error)
	GenerateImage(ctx context.Context, req *domain.ImageGenerationRequest) (*domain.ImageGenerationResponse, error)
	Transcribe(ctx context.Context, req *domain.AudioTranscriptionRequest) (*domain.AudioTranscriptionResponse, error)
}

// Authenticator resolves callers from the Authorization header.
type Authenticator interface {
	Authenticate(header string) (auth.KeyConfig, error)
	IsAdmin(header string) bool
}

// RateLimiter enforces per-key request budgets.
type RateLimiter interface {
	Allow(ctx context.Context, key, rateSpec string) (bool, ratelimit.Info)
	Info(ctx context.Context, key, rateSpec string) ratelimit.Info
}

// Moderator screens request content.
type Moderator interface {
	CheckMessages(ctx context.Context, messages []domain.Message) moderation.Verdict
	CheckText(ctx context.Context, text string) moderation.Verdict
	Proxy(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
}

// CooldownAdmin inspects and lifts provider cooldowns.
type CooldownAdmin interface {
	ListActive() []domain.CooldownEntry
	Get(providerName string) (domain.CooldownEntry, bool)
	Remove(providerName string) bool
}

// ModelCatalog lists the models the provider pool serves.
type ModelCatalog interface {
	Models() []string
	Serves(model string) bool
}

// Handler handles HTTP requests.
type Handler struct {
	gateway   Gateway
	keys      Authenticator
	limiter   RateLimiter
	moderator Moderator
	cooldowns CooldownAdmin
	catalog   ModelCatalog
	now       func() time.Time
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	gateway Gateway,
	keys Authenticator,
	limiter RateLimiter,
	moderator Moderator,
	cooldowns CooldownAdmin,
	catalog ModelCatalog,
) *Handler {
	return &Handler{
		gateway:   gateway,
		keys:      keys,
		limiter:   limiter,
		moderator: moderator,
		cooldowns: cooldowns,
		catalog:   catalog,
		now:       time.Now,
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error *domain.Error `json:"error"`
}

// allowMethods writes 405 unless the request method is one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}

	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(r.Context(), w, domain.NewError(domain.ErrorTypeInvalidRequest,
		domain.StatusCode(http.StatusMethodNotAllowed), "method not allowed"))
	return false
}

// authorize authenticates the caller and charges one request to its budget.
// It writes the error response and reports false on failure.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (auth.KeyConfig, bool) {
	ctx := r.Context()

	key, err := h.keys.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		observability.FromContext(ctx).Warn("authentication failed", observability.Error(err))
		writeError(ctx, w, domain.NewError(domain.ErrorTypeAuthentication,
			domain.StatusCode(http.StatusUnauthorized), "%s", err.Error()))
		return auth.KeyConfig{}, false
	}

	allowed, info := h.limiter.Allow(ctx, key.Key, key.RateLimit)
	if !allowed {
		setRateLimitHeaders(w, info)
		writeError(ctx, w, domain.NewError(domain.ErrorTypeRateLimit,
			domain.StatusCode(http.StatusTooManyRequests), "Rate limit exceeded"))
		return auth.KeyConfig{}, false
	}

	return key, true
}

// authorizeModel checks the caller's allow-list for model.
func authorizeModel(ctx context.Context, w http.ResponseWriter, key auth.KeyConfig, model string) bool {
	if key.AllowsModel(model) {
		return true
	}

	observability.FromContext(ctx).Warn("model access denied")
	writeError(ctx, w, domain.NewError(domain.ErrorTypePermission,
		domain.StatusCode(http.StatusForbidden), "You do not have access to model: %s", model))
	return false
}

// screen rejects content flagged by moderation.
func screen(ctx context.Context, w http.ResponseWriter, verdict moderation.Verdict) bool {
	if !verdict.Flagged {
		return true
	}

	reason := verdict.Reason
	if reason == "" {
		reason = "Content violates usage policy"
	}
	writeError(ctx, w, domain.NewError(domain.ErrorTypeContentPolicy,
		domain.StatusCode(http.StatusBadRequest), "%s", reason))
	return false
}

// finish writes the rate-limit headers and the success body.
func (h *Handler) finish(ctx context.Context, w http.ResponseWriter, key auth.KeyConfig, provider string, body any) {
	setRateLimitHeaders(w, h.limiter.Info(ctx, key.Key, key.RateLimit))
	if provider != "" {
		w.Header().Set(HeaderGatewayProvider, provider)
	}
	writeJSON(ctx, w, http.StatusOK, body)
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(info.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(info.Remaining))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(info.Reset.Unix(), 10))
}

func badRequest(format string, args ...any) *domain.Error {
	return domain.NewError(domain.ErrorTypeInvalidRequest, domain.StatusCode(http.StatusBadRequest), format, args...)
}

// writeError maps err to its envelope and status. Errors that are not
// envelopes become internal_error with status 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	envelope := domain.AsError(err)
	status := envelope.HTTPStatus()

	logger := observability.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", observability.Error(err), observability.Int("status", status))
	} else {
		logger.Info("request rejected",
			observability.String("type", string(envelope.Type)),
			observability.Int("status", status))
	}

	writeJSON(ctx, w, status, errorBody{Error: envelope})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Status is already written; nothing left but to log.
		observability.FromContext(ctx).Error("failed to encode response", observability.Error(err))
	}
}
