// Package guard wraps outbound calls to the post source and the scoring
// oracle with rate limiting and circuit breaking, adapted from the
// teacher's internal/net/ratelimit and internal/infrastructure/providers
// packages but stripped of caching (the Score Store is this system's only
// shared mutable resource).
package guard

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-provider token-bucket rate limiting.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates an empty per-provider limiter registry.
func NewLimiter() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

// Configure sets or replaces the limit for a named provider (e.g.
// "post_source", "oracle").
func (l *Limiter) Configure(provider string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[provider] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until a token is available for provider, or ctx is
// cancelled. An unconfigured provider is never throttled.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	l.mu.RLock()
	limiter, ok := l.limiters[provider]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
