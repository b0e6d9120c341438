package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/udev-retransmit/retransmit/loadbalance"
)

// Backoff sleeps an exponentially growing delay between consecutive
// failed attempts, capped at maxDelay, and resets to baseDelay after a
// success. Generalized from the structuring retry middleware's per-call
// "sleep baseDelay*2^i between retries of one request" into a persistent
// per-connection state that survives across attempts, since a
// Retransmitter's reconnect loop runs for the session's whole lifetime
// rather than for one bounded retry budget.
type Backoff struct {
	mu        sync.Mutex
	baseDelay time.Duration
	maxDelay  time.Duration
	failures  int
}

func NewBackoff(baseDelay, maxDelay time.Duration) *Backoff {
	return &Backoff{baseDelay: baseDelay, maxDelay: maxDelay}
}

func (b *Backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	delay := b.baseDelay << b.failures
	if delay <= 0 || delay > b.maxDelay {
		delay = b.maxDelay
	}
	b.failures++
	return delay
}

func (b *Backoff) reset() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// BackoffHook sleeps b's current delay before every attempt after the
// first, and resets b on success.
func BackoffHook(b *Backoff) Hook {
	return func(next AttemptFunc) AttemptFunc {
		first := true
		return func(ctx context.Context, addr loadbalance.Address) error {
			if !first {
				delay := b.next()
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
			first = false
			err := next(ctx, addr)
			if err == nil {
				b.reset()
			}
			return err
		}
	}
}
