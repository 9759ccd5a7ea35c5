package notifier

import (
	"sync"
	"time"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64
	CurrentCount int
	MaxPerWindow int
	Window       time.Duration
	Enabled      bool
}

// RateLimiter caps notifications over a sliding window so a burst of
// report edits does not flood the channels.
type RateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	enabled      bool
	sent         []time.Time // ascending
	dropped      int64
	now          func() time.Time
}

// NewRateLimiter creates a rate limiter. Zero limits fall back to the defaults.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = def.MaxPerWindow
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}

	return &RateLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		enabled:      config.Enabled,
		sent:         make([]time.Time, 0, config.MaxPerWindow),
		now:          time.Now,
	}
}

// Allow reports whether another notification fits in the current window and,
// if so, consumes a slot.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expire(now.Add(-r.window))

	if len(r.sent) >= r.maxPerWindow {
		r.dropped++
		return false
	}
	r.sent = append(r.sent, now)
	return true
}

// Release refunds the most recently consumed slot. Dispatch calls it when a
// notification reached no channel at all.
func (r *RateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.sent); n > 0 {
		r.sent = r.sent[:n-1]
	}
}

// expire drops slots consumed before cutoff. Caller holds mu.
func (r *RateLimiter) expire(cutoff time.Time) {
	i := 0
	for i < len(r.sent) && r.sent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.sent = append(r.sent[:0], r.sent[i:]...)
	}
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		Dropped:      r.dropped,
		CurrentCount: len(r.sent),
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// Reset clears the rate limiter state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = r.sent[:0]
	r.dropped = 0
}
