package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	maxBodyBytes  = 20 << 20
	maxAudioBytes = 25 << 20

	// maxAudioMemory is the part of a multipart upload kept in memory; the
	// rest spills to temporary files.
	maxAudioMemory = 8 << 20
)

// HandleChatCompletions serves POST /v1/chat/completions.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	key, ok := h.authorize(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	var req domain.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(ctx, w, badRequest("invalid request body: %v", err))
		return
	}

	switch {
	case req.Model == "":
		writeError(ctx, w, badRequest("Model is required"))
		return
	case len(req.Messages) == 0:
		writeError(ctx, w, badRequest("Messages are required and must be an array"))
		return
	case req.Stream:
		writeError(ctx, w, badRequest("streaming is not supported"))
		return
	}

	ctx = observability.WithModel(ctx, req.Model)
	if !authorizeModel(ctx, w, key, req.Model) {
		return
	}
	if !screen(ctx, w, h.moderator.CheckMessages(ctx, req.Messages)) {
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("chat completion request received", observability.Int("messages", len(req.Messages)))

	resp, err := h.gateway.Chat(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	logger.Info("chat completion succeeded",
		observability.String("served_by", resp.Provider),
		observability.Int("tokens", resp.Usage.TotalTokens),
	)

	h.finish(ctx, w, key, resp.Provider, resp)
}

// HandleImageGenerations serves POST /v1/images/generations.
func (h *Handler) HandleImageGenerations(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	key, ok := h.authorize(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	var req domain.ImageGenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(ctx, w, badRequest("invalid request body: %v", err))
		return
	}

	if req.Prompt == "" {
		writeError(ctx, w, badRequest("Prompt is required"))
		return
	}
	if req.Model == "" {
		req.Model = domain.DefaultImageModel
	}

	ctx = observability.WithModel(ctx, req.Model)
	if !authorizeModel(ctx, w, key, req.Model) {
		return
	}
	if !screen(ctx, w, h.moderator.CheckText(ctx, req.Prompt)) {
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("image generation request received")

	resp, err := h.gateway.GenerateImage(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	logger.Info("image generation succeeded",
		observability.String("served_by", resp.Provider),
		observability.Int("images", len(resp.Data)),
	)

	h.finish(ctx, w, key, resp.Provider, resp)
}

// HandleAudioTranscriptions serves POST /v1/audio/transcriptions. The body is
// multipart/form-data with a "file" part and optional model, language, prompt,
// response_format and temperature fields.
func (h *Handler) HandleAudioTranscriptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	key, ok := h.authorize(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	req, err := parseTranscription(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)
	if !authorizeModel(ctx, w, key, req.Model) {
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("audio transcription request received",
		observability.String("file", req.FileName),
		observability.Int("bytes", len(req.File)),
	)

	resp, err := h.gateway.Transcribe(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	logger.Info("audio transcription succeeded", observability.String("served_by", resp.Provider))

	h.finish(ctx, w, key, resp.Provider, resp)
}

func parseTranscription(w http.ResponseWriter, r *http.Request) (*domain.AudioTranscriptionRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioMemory); err != nil {
		return nil, badRequest("invalid multipart form: %v", err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest("failed to read audio file: %v", err)
	}

	req := &domain.AudioTranscriptionRequest{
		File:           data,
		FileName:       header.Filename,
		Model:          r.FormValue("model"),
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
		Temperature:    nil,
	}

	if raw := r.FormValue("temperature"); raw != "" {
		temperature, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return nil, badRequest("invalid temperature: %s", raw)
		}
		req.Temperature = &temperature
	}

	if req.Model == "" {
		req.Model = domain.DefaultAudioModel
	}

	return req, nil
}
