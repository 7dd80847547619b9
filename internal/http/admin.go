package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/moderation"
	"github.com/davidbz/hearth/internal/observability"
)

type cooldownList struct {
	Object string                 `json:"object"`
	Data   []domain.CooldownEntry `json:"data"`
}

type cooldownRemoved struct {
	Provider string `json:"provider"`
	Removed  bool   `json:"removed"`
}

// requireAdmin writes 401 unless the caller presents the admin key.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.keys.IsAdmin(r.Header.Get("Authorization")) {
		return true
	}

	writeError(r.Context(), w, domain.NewError(domain.ErrorTypeAuthentication,
		domain.StatusCode(http.StatusUnauthorized), "admin API key required"))
	return false
}

// HandleListCooldowns serves GET /admin/cooldowns.
func (h *Handler) HandleListCooldowns(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !h.requireAdmin(w, r) {
		return
	}

	entries := h.cooldowns.ListActive()
	if entries == nil {
		entries = []domain.CooldownEntry{}
	}

	writeJSON(r.Context(), w, http.StatusOK, cooldownList{Object: "list", Data: entries})
}

// HandleCooldown serves /admin/cooldowns/{name}: GET shows the provider's
// active cooldown and DELETE lifts it before it expires.
func (h *Handler) HandleCooldown(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodDelete) || !h.requireAdmin(w, r) {
		return
	}

	name := r.PathValue("name")
	ctx := observability.WithProvider(r.Context(), name)
	notFound := domain.NewError(domain.ErrorTypeInvalidRequest,
		domain.StatusCode(http.StatusNotFound), "no active cooldown for provider: %s", name)

	if r.Method == http.MethodGet {
		entry, ok := h.cooldowns.Get(name)
		if !ok {
			writeError(ctx, w, notFound)
			return
		}
		writeJSON(ctx, w, http.StatusOK, entry)
		return
	}

	if !h.cooldowns.Remove(name) {
		writeError(ctx, w, notFound)
		return
	}

	observability.FromContext(ctx).Info("cooldown lifted by admin")
	writeJSON(ctx, w, http.StatusOK, cooldownRemoved{Provider: name, Removed: true})
}

// HandleModerations serves POST /v1/moderations by forwarding the body to the
// moderation backend.
func (h *Handler) HandleModerations(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	key, ok := h.authorize(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(ctx, w, badRequest("failed to read request body: %v", err))
		return
	}

	var req struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(ctx, w, badRequest("invalid request body: %v", err))
		return
	}
	if isEmptyInput(req.Input) {
		writeError(ctx, w, badRequest("Input is required"))
		return
	}

	resp, err := h.moderator.Proxy(ctx, body)
	if errors.Is(err, moderation.ErrNotConfigured) {
		writeError(ctx, w, domain.NewError(domain.ErrorTypeInternal,
			domain.StatusCode(http.StatusInternalServerError), "Moderation service not configured"))
		return
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	h.finish(ctx, w, key, "", resp)
}

func isEmptyInput(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	for _, empty := range []string{"", "null", `""`, "[]"} {
		if string(trimmed) == empty {
			return true
		}
	}
	return false
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
