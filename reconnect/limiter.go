package reconnect

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/udev-retransmit/retransmit/loadbalance"
)

// Limiter paces reconnect attempts with a token bucket: tokens refill at
// attemptsPerSecond, up to burst. Unlike the structuring rate-limit
// middleware (which rejects a request once the bucket is empty), a
// reconnect attempt has nowhere else to go — so RateLimitHook blocks until
// a token is available instead of short-circuiting. This never paces
// application Send/delivery, only the out-of-band dial loop, preserving
// the no-flow-control invariant on in-session traffic.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a Limiter allowing attemptsPerSecond steady-state
// attempts with bursts up to burst.
func NewLimiter(attemptsPerSecond float64, burst int) *Limiter {
	return &Limiter{rl: rate.NewLimiter(rate.Limit(attemptsPerSecond), burst)}
}

// RateLimitHook blocks each attempt on l until a token is available, or
// returns ctx.Err() if ctx is canceled first.
func RateLimitHook(l *Limiter) Hook {
	return func(next AttemptFunc) AttemptFunc {
		return func(ctx context.Context, addr loadbalance.Address) error {
			if err := l.rl.Wait(ctx); err != nil {
				return err
			}
			return next(ctx, addr)
		}
	}
}
