package reconnect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/udev-retransmit/retransmit/loadbalance"
)

// LoggingHook records the target address, duration, and outcome of each
// reconnect attempt, mirroring the structuring logging middleware's
// start-time-before/duration-after shape.
func LoggingHook(logger *zap.SugaredLogger) Hook {
	return func(next AttemptFunc) AttemptFunc {
		return func(ctx context.Context, addr loadbalance.Address) error {
			start := time.Now()
			err := next(ctx, addr)
			fields := []interface{}{"addr", addr.Addr, "duration", time.Since(start)}
			if err != nil {
				logger.Warnw("reconnect attempt failed", append(fields, "error", err)...)
			} else {
				logger.Infow("reconnect attempt succeeded", fields...)
			}
			return err
		}
	}
}
