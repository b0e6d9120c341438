package retransmitter

import "go.uber.org/zap"

// NopLogger returns a SugaredLogger that discards everything, keeping
// tests quiet by default — the same opt-in posture as the structuring
// repo's LoggingMiddleware, which only logs when a caller explicitly
// adds it via Server.Use.
func NopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
