package cooldown

import (
	"sort"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// Registry tracks providers that are temporarily suppressed after a retriable
// failure. Entries expire by wall clock and are evicted lazily on read.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty cooldown registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		mu:      sync.Mutex{},
		entries: make(map[string]time.Time),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Put suppresses providerName until now+d. An existing window is replaced,
// not extended.
func (r *Registry) Put(providerName string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[providerName] = r.now().Add(d)
}

// IsSuppressed reports whether providerName is cooling down. An expired entry
// is evicted.
func (r *Registry) IsSuppressed(providerName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.entries[providerName]
	if !ok {
		return false
	}

	if r.now().Before(until) {
		return true
	}

	delete(r.entries, providerName)
	return false
}

// Get returns the active entry for providerName, if any.
func (r *Registry) Get(providerName string) (domain.CooldownEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.entries[providerName]
	if !ok {
		return domain.CooldownEntry{}, false
	}

	if !r.now().Before(until) {
		delete(r.entries, providerName)
		return domain.CooldownEntry{}, false
	}

	return domain.CooldownEntry{ProviderName: providerName, SuppressedUntil: until}, true
}

// Remove lifts the cooldown for providerName. It reports whether an entry existed.
func (r *Registry) Remove(providerName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[providerName]
	delete(r.entries, providerName)
	return ok
}

// ListActive returns active entries sorted by provider name, evicting expired ones.
func (r *Registry) ListActive() []domain.CooldownEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	active := make([]domain.CooldownEntry, 0, len(r.entries))

	for name, until := range r.entries {
		if !now.Before(until) {
			delete(r.entries, name)
			continue
		}
		active = append(active, domain.CooldownEntry{ProviderName: name, SuppressedUntil: until})
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].ProviderName < active[j].ProviderName
	})

	return active
}
