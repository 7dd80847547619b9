package observability

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Dispatch lifecycle event types.
const (
	EventAttemptFailed   = "dispatch.attempt_failed"
	EventCooldownApplied = "dispatch.cooldown_applied"
	EventDispatchFatal   = "dispatch.fatal"
	EventDispatchServed  = "dispatch.served"
	EventRetriesExceeded = "dispatch.retries_exhausted"
)

// EventBus implements the EventPublisher interface by writing each event as a
// structured log entry.
type EventBus struct {
	logger *zap.Logger
}

// NewEventBus creates a new event bus. A nil logger disables publishing.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger,
	}
}

// Publish publishes an event with the given type and data.
func (e *EventBus) Publish(ctx context.Context, eventType string, data map[string]any) {
	if e.logger == nil {
		return
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := contextFields(ctx)
	fields = append(fields, zap.String("event", eventType))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, data[k]))
	}

	e.logger.Info(eventType, fields...)
}
