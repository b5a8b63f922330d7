package eventcreator

import (
	"time"
)

// RateLimiter enforces a minimum period between event creations, derived from
// a maximum rate in events per second.
type RateLimiter struct {
	minPeriod time.Duration
	last      time.Time
}

// NewRateLimiter creates a limiter for maxRate events per second. A rate of
// zero or less disables the limit.
func NewRateLimiter(maxRate float64) *RateLimiter {
	var period time.Duration
	if maxRate > 0 {
		period = time.Duration(float64(time.Second) / maxRate)
	}
	return &RateLimiter{minPeriod: period}
}

// Allow returns true if enough time passed since the last recorded creation.
func (r *RateLimiter) Allow(now time.Time) bool {
	if r.minPeriod == 0 || r.last.IsZero() {
		return true
	}
	return now.Sub(r.last) >= r.minPeriod
}

// Record marks a creation at now.
func (r *RateLimiter) Record(now time.Time) {
	r.last = now
}

// Reset forgets the last creation.
func (r *RateLimiter) Reset() {
	r.last = time.Time{}
}
