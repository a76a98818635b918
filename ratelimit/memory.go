package ratelimit

import (
	"context"
	"sync"
	"time"
)

// defaultCleanupInterval controls how often idle buckets are swept.
const defaultCleanupInterval = 10 * time.Minute

// MemoryRateLimiter implements RateLimiter using an in-memory sliding window log.
// Safe for concurrent use. For Lambda, each warm instance shares this memory.
// Idle buckets are swept lazily from Allow, so no goroutine needs stopping.
type MemoryRateLimiter struct {
	config Config
	now    func() time.Time

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time

	cleanupInterval time.Duration
}

// bucket holds request timestamps for a single key.
type bucket struct {
	timestamps []time.Time
}

// NewMemoryRateLimiter creates a new in-memory rate limiter.
func NewMemoryRateLimiter(cfg Config) (*MemoryRateLimiter, error) {
	return NewMemoryRateLimiterWithClock(cfg, time.Now)
}

// NewMemoryRateLimiterWithClock creates a rate limiter reading time from now.
// Useful for testing window expiry without sleeping.
func NewMemoryRateLimiterWithClock(cfg Config, now func() time.Time) (*MemoryRateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryRateLimiter{
		config:          cfg,
		now:             now,
		buckets:         make(map[string]*bucket),
		lastCleanup:     now(),
		cleanupInterval: defaultCleanupInterval,
	}, nil
}

// Allow checks if a request should be allowed for the given key.
// Uses sliding window log algorithm: counts requests in the last Window period.
func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-m.config.Window)

	if now.Sub(m.lastCleanup) >= m.cleanupInterval {
		m.cleanupLocked(windowStart)
		m.lastCleanup = now
	}

	b, exists := m.buckets[key]
	if !exists {
		b = &bucket{timestamps: make([]time.Time, 0, m.config.RequestsPerWindow)}
		m.buckets[key] = b
	}

	b.timestamps = filterValid(b.timestamps, windowStart)

	if len(b.timestamps) >= m.config.RequestsPerWindow {
		// Retry once the oldest request leaves the window
		retryAfter := b.timestamps[0].Add(m.config.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	b.timestamps = append(b.timestamps, now)
	return true, 0, nil
}

// cleanupLocked removes buckets with no timestamps after windowStart.
func (m *MemoryRateLimiter) cleanupLocked(windowStart time.Time) {
	for key, b := range m.buckets {
		b.timestamps = filterValid(b.timestamps, windowStart)
		if len(b.timestamps) == 0 {
			delete(m.buckets, key)
		}
	}
}

// filterValid returns only timestamps after the cutoff.
func filterValid(timestamps []time.Time, cutoff time.Time) []time.Time {
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Len returns the number of keys currently tracked.
func (m *MemoryRateLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)
