package retransmitter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/udev-retransmit/retransmit/closebody"
	"github.com/udev-retransmit/retransmit/metrics"
	"github.com/udev-retransmit/retransmit/transport"
)

// TransportFactory builds a fresh Transport to install after the engine's
// current one fails or closes. Its absence disables the built-in
// reconnect loop — the caller is then responsible for calling UseTransport
// again itself.
type TransportFactory func(ctx context.Context) (transport.Transport, error)

// Config holds every tunable spec.md §6 names, all positive integers
// with defaults, matching the structuring repo's constructor-argument
// configuration style rather than env vars or a config file.
type Config struct {
	MaxUnackBytes     int
	MaxUnackMessages  int
	MaxUnackTime      time.Duration
	CloseTimeout      time.Duration
	ReconnectInterval time.Duration

	// TransportFactory is optional. When set, the engine redials on a
	// transport failure instead of waiting passively for the caller to
	// call UseTransport.
	TransportFactory TransportFactory

	// CloseBodyCodec opts into the compatibility layer of spec.md §9
	// open question 1: a JSON {code,reason} body sent as a CLOSE
	// follow-up message. Left nil, no body is ever sent or expected,
	// which is this module's chosen default.
	CloseBodyCodec closebody.Codec

	// Metrics is optional Prometheus instrumentation. Nil disables it
	// entirely; the engine never requires it to function.
	Metrics *metrics.Metrics

	Logger *zap.SugaredLogger
}

// DefaultConfig returns the defaults from spec.md §6's configuration
// table.
func DefaultConfig() Config {
	return Config{
		MaxUnackBytes:     100_000,
		MaxUnackMessages:  100,
		MaxUnackTime:      10 * time.Second,
		CloseTimeout:      60 * time.Second,
		ReconnectInterval: 250 * time.Millisecond,
		Logger:            NopLogger(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxUnackBytes <= 0 {
		c.MaxUnackBytes = d.MaxUnackBytes
	}
	if c.MaxUnackMessages <= 0 {
		c.MaxUnackMessages = d.MaxUnackMessages
	}
	if c.MaxUnackTime <= 0 {
		c.MaxUnackTime = d.MaxUnackTime
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
