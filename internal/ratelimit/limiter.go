package ratelimit

import (
	"context"
	"time"

	"github.com/davidbz/hearth/internal/observability"
)

// Store persists request windows.
type Store interface {
	Take(ctx context.Context, key string, rate Rate, now time.Time) (bool, Info, error)
	Peek(ctx context.Context, key string, rate Rate, now time.Time) (Info, error)
}

// Limiter applies rate strings to a Store. Store failures fail open.
type Limiter struct {
	store Store
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter on store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for key and reports whether it fits the rate.
func (l *Limiter) Allow(ctx context.Context, key, rateSpec string) (bool, Info) {
	rate := l.parse(ctx, rateSpec)
	now := l.now()

	allowed, info, err := l.store.Take(ctx, key, rate, now)
	if err != nil {
		observability.FromContext(ctx).Warn("rate limit store unavailable, allowing request",
			observability.Error(err))
		return true, Info{Limit: rate.Limit, Remaining: rate.Limit, Reset: now.Add(rate.Window)}
	}

	if !allowed {
		observability.FromContext(ctx).Warn("rate limit exceeded",
			observability.Int("limit", rate.Limit),
			observability.Duration("window", rate.Window))
	}

	return allowed, info
}

// Info reports the current window for key without recording a request.
func (l *Limiter) Info(ctx context.Context, key, rateSpec string) Info {
	rate := l.parse(ctx, rateSpec)
	now := l.now()

	info, err := l.store.Peek(ctx, key, rate, now)
	if err != nil {
		observability.FromContext(ctx).Warn("rate limit store unavailable", observability.Error(err))
		return Info{Limit: rate.Limit, Remaining: rate.Limit, Reset: now.Add(rate.Window)}
	}
	return info
}

func (l *Limiter) parse(ctx context.Context, rateSpec string) Rate {
	rate, ok := ParseRate(rateSpec)
	if !ok {
		observability.FromContext(ctx).Warn("invalid rate limit format, using default",
			observability.String("rate_limit", rateSpec))
	}
	return rate
}
