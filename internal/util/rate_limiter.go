package util

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/drallgood/bookrequest/internal/logger"
)

const (
	// DefaultRequestsPerSecond is used when a limiter is built with a non-positive rate
	DefaultRequestsPerSecond = 10.0
	// DefaultBurst is used when a limiter is built with a non-positive burst
	DefaultBurst = 5
	// maxBackoff caps the delay returned by OnRateLimit
	maxBackoff = 30 * time.Second
)

// RateLimiter throttles calls to one backend instance
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
	base    rate.Limit

	mu      sync.Mutex
	slowed  bool
	lastHit time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given burst
func NewRateLimiter(name string, requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		base:    rate.Limit(requestsPerSecond),
	}
}

// Wait blocks until a request may proceed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", r.name, err)
	}
	return nil
}

// OnRateLimit halves the allowed rate after the backend answered 429 and returns
// how long the caller should back off
func (r *RateLimiter) OnRateLimit(retryAfter time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	newLimit := r.limiter.Limit() / 2
	if newLimit < r.base/16 {
		newLimit = r.base / 16
	}
	r.limiter.SetLimit(newLimit)
	r.slowed = true
	r.lastHit = time.Now()

	backoff := time.Duration(float64(time.Second) / float64(newLimit))
	if retryAfter > backoff {
		backoff = retryAfter
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	logger.Get().Warn("Rate limited, reducing request rate", map[string]interface{}{
		"limiter":     r.name,
		"new_rate":    float64(newLimit),
		"retry_after": retryAfter.String(),
	})
	return backoff
}

// ResetRate restores the configured rate
func (r *RateLimiter) ResetRate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.slowed {
		return
	}
	r.limiter.SetLimit(r.base)
	r.slowed = false
}

// Rate returns the currently allowed requests per second
func (r *RateLimiter) Rate() float64 {
	return float64(r.limiter.Limit())
}

// Name returns the name of this limiter
func (r *RateLimiter) Name() string {
	return r.name
}

// LimiterRegistry hands out one shared limiter per key (a backend base URL)
type LimiterRegistry struct {
	mu                sync.Mutex
	limiters          map[string]*RateLimiter
	requestsPerSecond float64
	burst             int
}

// NewLimiterRegistry creates a registry whose limiters share the same settings
func NewLimiterRegistry(requestsPerSecond float64, burst int) *LimiterRegistry {
	return &LimiterRegistry{
		limiters:          make(map[string]*RateLimiter),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
	}
}

// For returns the limiter for key, creating it on first use
func (r *LimiterRegistry) For(key string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := NewRateLimiter(key, r.requestsPerSecond, r.burst)
	r.limiters[key] = l
	return l
}
