// Package common holds behaviour shared by every protocol translator: turning
// backend failures into the normalized error envelope, parsing image data URIs
// and rejecting operations a backend does not offer.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
)

// Operation names used in "not supported" errors.
const (
	OperationImageGeneration    = "image generation"
	OperationAudioTranscription = "audio transcription"
)

// NotSupported is the fast failure for operations a backend cannot serve.
func NotSupported(operation string) *domain.Error {
	return domain.NewError(domain.ErrorTypeInvalidRequest, domain.StatusCode(http.StatusBadRequest),
		"%s not supported by this provider", operation)
}

// errorBody covers the error shapes returned by OpenAI-compatible backends,
// Anthropic and Gemini.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Type    string          `json:"type"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// FromHTTPStatus normalizes a non-success backend response. The backend's
// message is kept when present; its type is kept only when it belongs to the
// normalized vocabulary, otherwise the type is derived from the status.
func FromHTTPStatus(status int, body []byte) *domain.Error {
	message, backendType := parseErrorBody(body)
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "provider request failed"
	}

	errType := domain.ErrorType(backendType)
	if !errType.IsKnown() {
		errType = domain.ErrorTypeForStatus(status)
	}

	return domain.NewError(errType, domain.StatusCode(status), "%s", message)
}

func parseErrorBody(body []byte) (string, string) {
	var parsed errorBody
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return strings.TrimSpace(string(body)), ""
	}

	if len(parsed.Error) > 0 {
		var detail errorDetail
		if json.Unmarshal(parsed.Error, &detail) == nil {
			return detail.Message, detail.Type
		}

		var text string
		if json.Unmarshal(parsed.Error, &text) == nil {
			return text, parsed.Type
		}
	}

	return parsed.Message, parsed.Type
}

// FromTransportError normalizes a failure that produced no HTTP response.
// Cancellation and deadlines become timeout errors so the dispatcher retries
// them; envelopes pass through untouched.
func FromTransportError(err error) *domain.Error {
	if err == nil {
		return nil
	}

	var envelope *domain.Error
	if errors.As(err, &envelope) {
		return envelope
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.Error{
			Message: "Request timeout",
			Type:    domain.ErrorTypeTimeout,
			Code:    domain.SymbolCode(domain.CodeTimeout),
			Cause:   err,
		}
	}

	return &domain.Error{
		Message: err.Error(),
		Type:    domain.ErrorTypeProvider,
		Code:    domain.Code{},
		Cause:   err,
	}
}

// InvalidResponse reports a backend reply that could not be understood.
func InvalidResponse(err error) *domain.Error {
	return &domain.Error{
		Message: "invalid response from provider: " + err.Error(),
		Type:    domain.ErrorTypeProvider,
		Code:    domain.Code{},
		Cause:   err,
	}
}
