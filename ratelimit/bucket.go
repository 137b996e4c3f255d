package ratelimit

import (
	"context"
	"sync"

	"github.com/goliatone/go-hookrelay/core"
	"golang.org/x/time/rate"
)

// TokenBucketPolicy paces outbound calls with one token bucket per key.
// BeforeCall waits for a token and only fails when ctx ends first.
type TokenBucketPolicy struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewTokenBucketPolicy(perSecond float64, burst int) *TokenBucketPolicy {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketPolicy{
		perSecond: perSecond,
		burst:     burst,
		limiters:  map[string]*rate.Limiter{},
	}
}

func (p *TokenBucketPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.perSecond <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return p.limiter(key).Wait(ctx)
}

func (p *TokenBucketPolicy) AfterCall(context.Context, core.RateLimitKey, core.ProviderResponseMeta) error {
	return nil
}

func (p *TokenBucketPolicy) limiter(key core.RateLimitKey) *rate.Limiter {
	id := stateKey(normalizeKey(key))
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(p.perSecond), p.burst)
		p.limiters[id] = limiter
	}
	return limiter
}

// ChainPolicy runs policies in order. BeforeCall stops at the first error;
// AfterCall reports the first error but still notifies every policy.
type ChainPolicy []core.RateLimitPolicy

func (c ChainPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	for _, policy := range c {
		if policy == nil {
			continue
		}
		if err := policy.BeforeCall(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c ChainPolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ProviderResponseMeta) error {
	var first error
	for _, policy := range c {
		if policy == nil {
			continue
		}
		if err := policy.AfterCall(ctx, key, res); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ core.RateLimitPolicy = (*TokenBucketPolicy)(nil)
	_ core.RateLimitPolicy = ChainPolicy(nil)
)
