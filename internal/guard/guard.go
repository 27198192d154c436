package guard

import (
	"context"

	"github.com/evidengine/core/internal/apperr"
)

// ProviderGuard wraps one external provider's outbound calls with rate
// limiting and circuit breaking, in the idiom of the teacher's
// ProviderGuard (internal/providers/guards/guard.go) minus its response
// cache: neither the post source nor the oracle response is safe to
// replay across calls (post freshness and oracle scoring both depend on
// when the call was made).
type ProviderGuard struct {
	provider string
	limiter  *Limiter
	breaker  *BreakerManager
}

// NewProviderGuard binds provider's name to the shared limiter and
// breaker registries so every call site pays the same policy.
func NewProviderGuard(provider string, limiter *Limiter, breaker *BreakerManager) *ProviderGuard {
	return &ProviderGuard{provider: provider, limiter: limiter, breaker: breaker}
}

// RateLimitSignal is implemented by provider-specific errors (e.g.
// postsource.RateLimitError) that mean "the upstream itself returned 429",
// as opposed to the local limiter or breaker tripping. Do classifies both
// the same way (§7 RateLimited) without importing the provider package.
type RateLimitSignal interface {
	RateLimited() bool
}

// Do runs fn after waiting on the rate limiter, through the circuit
// breaker. kindOnFailure classifies any other error fn returns; a 429
// surfaced by fn (detected via RateLimitSignal) and a tripped breaker are
// always reported as apperr.RateLimited regardless of kindOnFailure.
func (g *ProviderGuard) Do(ctx context.Context, op string, kindOnFailure apperr.Kind, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx, g.provider); err != nil {
		return nil, apperr.NewRateLimited(op, err)
	}

	result, err := g.breaker.Execute(g.provider, func() (interface{}, error) {
		return fn(ctx)
	})
	if err == ErrBreakerOpen {
		return nil, apperr.NewRateLimited(op, err)
	}
	if signal, ok := err.(RateLimitSignal); ok && signal.RateLimited() {
		return nil, apperr.NewRateLimited(op, err)
	}
	if err != nil {
		return nil, &apperr.Error{Kind: kindOnFailure, Op: op, Err: err}
	}
	return result, nil
}
