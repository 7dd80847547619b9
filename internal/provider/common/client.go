package common

import (
	"strings"

	"github.com/go-resty/resty/v2"
)

// NewRESTClient builds the resty client used by the hand-written translators.
// It sets neither a timeout nor retries: the dispatcher bounds each attempt
// through the request context and owns failover.
func NewRESTClient() *resty.Client {
	return resty.New().
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
}

// BaseURL returns configured with any trailing slash removed, or fallback.
func BaseURL(configured, fallback string) string {
	if configured == "" {
		configured = fallback
	}
	return strings.TrimRight(configured, "/")
}
