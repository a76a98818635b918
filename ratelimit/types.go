// Package ratelimit bounds how often SMS challenges are issued per phone
// number and how many codes may be submitted per challenge.
// Implementations are in-memory (single process) and DynamoDB (shared across
// Lambda instances).
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RateLimiter defines the interface for rate limiting implementations.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	// Allow checks if a request should be allowed for the given key.
	// Returns (allowed, retryAfter, error).
	// retryAfter indicates when to retry if blocked (0 if allowed).
	// A non-nil error is reported with allowed=true: limiter failures fail open.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Config contains rate limit configuration.
type Config struct {
	// RequestsPerWindow is the max requests allowed in Window.
	RequestsPerWindow int

	// Window is the time window for counting requests.
	Window time.Duration
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be positive, got %d", c.RequestsPerWindow)
	}
	if c.Window <= 0 {
		return fmt.Errorf("Window must be positive, got %v", c.Window)
	}
	return nil
}

// IssueKey is the limiter key for challenge issuance to a phone number.
func IssueKey(phone string) string {
	return "issue#" + phone
}

// AttemptKey is the limiter key for code submissions against one challenge.
// The deadline identifies the challenge: re-issuing resets the budget.
func AttemptKey(phone string, expiresAtMillis int64) string {
	return "verify#" + phone + "#" + strconv.FormatInt(expiresAtMillis, 10)
}
