package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RateLimiter defines the interface for rate limiting implementations.
type RateLimiter interface {
	// Allow checks if the request should be allowed based on the key and rate limit.
	// remaining indicates how many requests are left in the current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)

	// Reset clears the rate limit counter for the given key.
	Reset(ctx context.Context, key string) error
}

// RateLimitInfo contains information about a rate limit check.
type RateLimitInfo struct {
	Key        string
	Limit      int
	Window     time.Duration
	Remaining  int
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitHooks provides extension points for rate limit decisions.
type RateLimitHooks struct {
	// OnDeny is called when a request is denied. The request is denied
	// regardless of what the hook does.
	OnDeny func(ctx context.Context, info *RateLimitInfo)

	// OnError is called when the limiter fails. Returning nil lets the
	// request through.
	OnError func(ctx context.Context, err error, info *RateLimitInfo) error
}

// RateLimitConfig holds configuration for a RateLimitGuard.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration

	// FailOpen allows requests when the limiter itself errors.
	FailOpen bool

	Hooks RateLimitHooks
}

// RateLimitGuard applies a fixed limit to keys using a RateLimiter.
type RateLimitGuard struct {
	limiter RateLimiter
	config  RateLimitConfig
}

func NewRateLimitGuard(limiter RateLimiter, config RateLimitConfig) *RateLimitGuard {
	return &RateLimitGuard{limiter: limiter, config: config}
}

// Check returns a *RateLimitError when key is over its limit.
func (g *RateLimitGuard) Check(ctx context.Context, key string) error {
	info := &RateLimitInfo{
		Key:    key,
		Limit:  g.config.Limit,
		Window: g.config.Window,
	}

	allowed, remaining, err := g.limiter.Allow(ctx, key, g.config.Limit, g.config.Window)
	info.Remaining = remaining
	info.Allowed = allowed

	if err != nil {
		if g.config.Hooks.OnError != nil {
			return g.config.Hooks.OnError(ctx, err, info)
		}
		if g.config.FailOpen {
			return nil
		}
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if !allowed {
		info.RetryAfter = g.config.Window
		if g.config.Hooks.OnDeny != nil {
			g.config.Hooks.OnDeny(ctx, info)
		}
		return &RateLimitError{RetryAfter: g.config.Window, Remaining: remaining}
	}
	return nil
}

// RateLimitError is returned when a request is rate limited.
type RateLimitError struct {
	RetryAfter time.Duration
	Remaining  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %v", e.RetryAfter)
}

// AsRateLimitError extracts RateLimitError from err if possible.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var e *RateLimitError
	ok := errors.As(err, &e)
	return e, ok
}

// ---- Sliding Window Rate Limiter (Memory) ----

type slidingWindowEntry struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// MemoryRateLimiter implements rate limiting using in-memory sliding window.
// Limits are per process; use RedisRateLimiter when running replicas.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*slidingWindowEntry
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string]*slidingWindowEntry),
		now:     time.Now,
	}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	r.mu.Lock()
	entry, exists := r.entries[key]
	if !exists {
		entry = &slidingWindowEntry{}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-window)

	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= limit {
		return false, 0, nil
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, limit - len(entry.timestamps), nil
}

func (r *MemoryRateLimiter) Reset(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}
