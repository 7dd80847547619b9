package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/davidbz/hearth/internal/auth"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const modelOwner = "hearth"

type modelList struct {
	Object string  `json:"object"`
	Data   []model `json:"data"`
}

type model struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	Created    int64             `json:"created"`
	OwnedBy    string            `json:"owned_by"`
	Permission []modelPermission `json:"permission"`
	Root       string            `json:"root"`
	Parent     *string           `json:"parent"`
}

type modelPermission struct {
	ID                 string  `json:"id"`
	Object             string  `json:"object"`
	Created            int64   `json:"created"`
	AllowCreateEngine  bool    `json:"allow_create_engine"`
	AllowSampling      bool    `json:"allow_sampling"`
	AllowLogprobs      bool    `json:"allow_logprobs"`
	AllowSearchIndices bool    `json:"allow_search_indices"`
	AllowView          bool    `json:"allow_view"`
	AllowFineTuning    bool    `json:"allow_fine_tuning"`
	Organization       string  `json:"organization"`
	Group              *string `json:"group_id"`
	IsBlocking         bool    `json:"is_blocking"`
}

func (h *Handler) describeModel(id string) model {
	now := h.now()
	return model{
		ID:      id,
		Object:  "model",
		Created: now.Unix(),
		OwnedBy: modelOwner,
		Permission: []modelPermission{{
			ID:                 "modelperm-" + strconv.FormatInt(now.UnixMilli(), 10),
			Object:             "model_permission",
			Created:            now.Unix(),
			AllowCreateEngine:  false,
			AllowSampling:      true,
			AllowLogprobs:      true,
			AllowSearchIndices: false,
			AllowView:          true,
			AllowFineTuning:    false,
			Organization:       "*",
			Group:              nil,
			IsBlocking:         false,
		}},
		Root:   id,
		Parent: nil,
	}
}

// optionalKey authenticates the caller when an Authorization header is sent.
// Anonymous callers get the full catalog and no rate-limit headers. A sent but
// invalid key is rejected.
func (h *Handler) optionalKey(w http.ResponseWriter, r *http.Request) (*auth.KeyConfig, bool) {
	if r.Header.Get("Authorization") == "" {
		observability.FromContext(r.Context()).Debug("anonymous model listing")
		return nil, true
	}

	key, ok := h.authorize(w, r)
	if !ok {
		return nil, false
	}
	return &key, true
}

// HandleModels serves GET and HEAD /v1/models.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	key, ok := h.optionalKey(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	if r.Method == http.MethodHead {
		h.setOptionalRateLimitHeaders(ctx, w, key)
		w.WriteHeader(http.StatusOK)
		return
	}

	ids := h.catalog.Models()
	data := make([]model, 0, len(ids))
	for _, id := range ids {
		if key != nil && !key.AllowsModel(id) {
			continue
		}
		data = append(data, h.describeModel(id))
	}

	observability.FromContext(ctx).Info("listing models", observability.Int("count", len(data)))

	h.setOptionalRateLimitHeaders(ctx, w, key)
	writeJSON(ctx, w, http.StatusOK, modelList{Object: "list", Data: data})
}

// HandleModel serves GET /v1/models/{id}.
func (h *Handler) HandleModel(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	key, ok := h.optionalKey(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	id := r.PathValue("id")
	if id == "" {
		writeError(ctx, w, badRequest("Model ID is required"))
		return
	}

	ctx = observability.WithModel(ctx, id)
	if key != nil && !authorizeModel(ctx, w, *key, id) {
		return
	}

	if !h.catalog.Serves(id) {
		writeError(ctx, w, domain.NewError(domain.ErrorTypeInvalidRequest,
			domain.StatusCode(http.StatusNotFound), "Model not found: %s", id))
		return
	}

	h.setOptionalRateLimitHeaders(ctx, w, key)
	writeJSON(ctx, w, http.StatusOK, h.describeModel(id))
}

func (h *Handler) setOptionalRateLimitHeaders(ctx context.Context, w http.ResponseWriter, key *auth.KeyConfig) {
	if key == nil {
		return
	}
	setRateLimitHeaders(w, h.limiter.Info(ctx, key.Key, key.RateLimit))
}
