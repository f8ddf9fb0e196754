// Package ratelimit paces outbound calls to rate-sensitive upstreams.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Waiter blocks until the next call is allowed
type Waiter interface {
	Wait(ctx context.Context) error
}

// Limiter wraps a token-bucket limiter for one upstream
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter allows rps calls per second with the given burst
func NewLimiter(name string, rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), name: name}
}

// NewIntervalLimiter allows one call every interval with no burst.
// A non-positive interval disables pacing.
func NewIntervalLimiter(name string, interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1), name: name}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), 1), name: name}
}

// Name returns the upstream name
func (l *Limiter) Name() string {
	return l.name
}

// Wait blocks until one token is available or ctx is done.
// Reserve is used so a cancelled wait gives its token back.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("ratelimit %s: cannot reserve token", l.name)
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Unlimited never blocks
type Unlimited struct{}

// Wait returns immediately unless ctx is already done
func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
