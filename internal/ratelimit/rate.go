// Package ratelimit enforces a per-key sliding-window request limit.
package ratelimit

import (
	"regexp"
	"strconv"
	"time"
)

// Rate is a request budget over a sliding window.
type Rate struct {
	Limit  int
	Window time.Duration
}

// DefaultRate applies when a rate string cannot be parsed.
var DefaultRate = Rate{Limit: 60, Window: time.Minute}

var (
	ratePattern = regexp.MustCompile(`^(\d+)/(min|hour|day|month|year)$`)

	windows = map[string]time.Duration{
		"min":   time.Minute,
		"hour":  time.Hour,
		"day":   24 * time.Hour,
		"month": 30 * 24 * time.Hour,
		"year":  365 * 24 * time.Hour,
	}
)

// ParseRate parses "<n>/<unit>" where unit is min, hour, day, month or year.
// Invalid input yields DefaultRate and false.
func ParseRate(s string) (Rate, bool) {
	match := ratePattern.FindStringSubmatch(s)
	if match == nil {
		return DefaultRate, false
	}

	limit, err := strconv.Atoi(match[1])
	if err != nil {
		return DefaultRate, false
	}

	return Rate{Limit: limit, Window: windows[match[2]]}, true
}

// Info describes a key's standing in its window.
type Info struct {
	Limit     int
	Remaining int
	Reset     time.Time
}
