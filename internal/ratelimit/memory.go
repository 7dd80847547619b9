package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps request timestamps per key in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:       sync.Mutex{},
		requests: make(map[string][]time.Time),
	}
}

// Take records a request at now when the window has room.
func (s *MemoryStore) Take(_ context.Context, key string, rate Rate, now time.Time) (bool, Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.prune(key, rate, now)
	allowed := len(window) < rate.Limit
	if allowed {
		window = append(window, now)
		s.requests[key] = window
	}

	return allowed, info(window, rate, now), nil
}

// Peek reports the window without recording a request.
func (s *MemoryStore) Peek(_ context.Context, key string, rate Rate, now time.Time) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return info(s.prune(key, rate, now), rate, now), nil
}

// prune drops timestamps that left the window and forgets idle keys.
func (s *MemoryStore) prune(key string, rate Rate, now time.Time) []time.Time {
	requests := s.requests[key]

	i := 0
	for i < len(requests) && now.Sub(requests[i]) >= rate.Window {
		i++
	}
	requests = requests[i:]

	if len(requests) == 0 {
		delete(s.requests, key)
		return nil
	}

	s.requests[key] = requests
	return requests
}

func info(window []time.Time, rate Rate, now time.Time) Info {
	reset := now.Add(rate.Window)
	if len(window) > 0 {
		reset = window[0].Add(rate.Window)
	}

	return Info{
		Limit:     rate.Limit,
		Remaining: max(0, rate.Limit-len(window)),
		Reset:     reset,
	}
}
