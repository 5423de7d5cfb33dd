// Package schedule produces the randomized waits that keep a fleet of devices
// from hitting the update server at the same moment.
package schedule

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock computes initial delays and jittered check intervals. The zero value
// uses the package-level random source and wall time.
type Clock struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	rnd      *rand.Rand
	now      func() time.Time
}

// New returns a Clock drawing its initial delay from [minDelay, maxDelay).
func New(minDelay, maxDelay time.Duration) *Clock {
	return &Clock{minDelay: minDelay, maxDelay: maxDelay}
}

// SetBounds replaces the initial delay range.
func (c *Clock) SetBounds(minDelay, maxDelay time.Duration) {
	c.mu.Lock()
	c.minDelay, c.maxDelay = minDelay, maxDelay
	c.mu.Unlock()
}

// Bounds returns the initial delay range.
func (c *Clock) Bounds() (minDelay, maxDelay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minDelay, c.maxDelay
}

// WithSource pins the random source, for reproducible schedules in tests.
func (c *Clock) WithSource(src rand.Source) *Clock {
	c.mu.Lock()
	c.rnd = rand.New(src)
	c.mu.Unlock()
	return c
}

// WithNow replaces the time source.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Now returns the current time from the configured source.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	now := c.now
	c.mu.Unlock()
	if now == nil {
		return time.Now()
	}
	return now()
}

// int64n returns a uniform value in [0, n). n must be positive.
func (c *Clock) int64n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rnd == nil {
		return rand.Int64N(n)
	}
	return c.rnd.Int64N(n)
}

// InitialDelay returns a uniform duration in the [min, max) bounds. An empty
// or inverted range yields min.
func (c *Clock) InitialDelay() time.Duration {
	lo, hi := c.Bounds()
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.int64n(int64(hi-lo)))
}

// NextInterval returns base with up to ±10% jitter: [base-base/10, base+base/10).
func (c *Clock) NextInterval(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	v := base / 10
	if v <= 0 {
		return base
	}
	return base - v + time.Duration(c.int64n(int64(2*v)))
}

// DueNow reports whether a check should run: forced, never checked, or at
// least interval elapsed since last.
func (c *Clock) DueNow(last time.Time, interval time.Duration, forced bool) bool {
	if forced || last.IsZero() {
		return true
	}
	return c.Now().Sub(last) >= interval
}

// Remaining returns how long until interval has elapsed since last, never
// negative.
func (c *Clock) Remaining(last time.Time, interval time.Duration) time.Duration {
	if last.IsZero() {
		return 0
	}
	d := interval - c.Now().Sub(last)
	if d < 0 {
		return 0
	}
	return d
}
