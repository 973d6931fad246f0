package oracle

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures sequential retry with exponential backoff. Retries
// stay sequential, so a wrapped provider still has at most one call in
// flight.
type RetryPolicy struct {
	MaxRetries int // attempts after the first call
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	OnRetry    func(err error, attempt int, delay time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay computes the backoff for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay)
	if base <= 0 {
		base = float64(500 * time.Millisecond)
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2.0
	}
	d := base * math.Pow(mult, float64(attempt))
	if max := float64(p.MaxDelay); max > 0 && d > max {
		d = max
	}
	if p.Jitter {
		d = d * (0.5 + rand.Float64())
	}
	return time.Duration(d)
}

type retryProvider struct {
	inner  Provider
	policy RetryPolicy
}

// WithRetry wraps a provider with the given policy. Context cancellation and
// deadline expiry are never retried; the caller's budget is spent.
func WithRetry(p Provider, policy RetryPolicy) Provider {
	if policy.MaxRetries <= 0 {
		return p
	}
	return &retryProvider{inner: p, policy: policy}
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := r.inner.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	for attempt := 0; attempt < r.policy.MaxRetries; attempt++ {
		if !retryable(err) {
			return nil, err
		}
		delay := r.policy.Delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(err, attempt+1, delay)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		resp, err = r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
