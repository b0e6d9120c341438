// Package reconnect paces and observes the dial attempts a Retransmitter
// makes while its Transport slot is empty.
//
// This is retargeted from the structuring middleware package's onion model
// around one RPC call (logging/timeout/rate-limit wrapping a single
// request/response) to the onion model around one dial attempt: the same
// Chain-of-wrapped-closures shape, applied to "try to reconnect" instead of
// "handle this RPC".
package reconnect

import (
	"context"

	"github.com/udev-retransmit/retransmit/loadbalance"
)

// AttemptFunc dials addr and reports whether the attempt succeeded. A
// Retransmitter supplies the innermost AttemptFunc (the real dial); hooks
// wrap it with logging, pacing, and backoff.
type AttemptFunc func(ctx context.Context, addr loadbalance.Address) error

// Hook wraps an AttemptFunc with before/after behavior, mirroring
// middleware.Middleware's decorator shape.
type Hook func(next AttemptFunc) AttemptFunc

// Chain composes hooks so the first hook in the list is the outermost
// layer — executed first before the dial, last after it returns.
func Chain(hooks ...Hook) Hook {
	return func(next AttemptFunc) AttemptFunc {
		for i := len(hooks) - 1; i >= 0; i-- {
			next = hooks[i](next)
		}
		return next
	}
}
