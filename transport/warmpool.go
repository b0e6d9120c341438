// warmpool.go adapts the structuring repo's transport/pool.go from a
// multiplexed-connection-per-request pool into a small pool of
// pre-dialed spare TCP connections the reconnect loop can draw on to
// cut reconnect latency. Unlike the structuring repo's ConnPool, there
// is never more than one *in-use* connection here — this only shrinks
// the time between "transport failed" and "new transport OPEN,"
// matching spec.md §3's Transport Slot ("holds at most one live
// underlying connection at a time").
package transport

import (
	"fmt"
	"net"
	"sync"
)

// WarmPool maintains up to maxSpares pre-dialed connections to a
// single address, ready to be handed to a fresh TCPTransport the
// moment the active one fails.
type WarmPool struct {
	mu        sync.Mutex
	spares    chan net.Conn
	addr      string
	maxSpares int
	curSpares int
	dial      func(addr string) (net.Conn, error)
}

// NewWarmPool creates a warm pool for addr. dial is the dialer to use
// (net.Dial in production, a fake in tests).
func NewWarmPool(addr string, maxSpares int, dial func(addr string) (net.Conn, error)) *WarmPool {
	return &WarmPool{
		spares:    make(chan net.Conn, maxSpares),
		addr:      addr,
		maxSpares: maxSpares,
		dial:      dial,
	}
}

// Refill tops the pool up to maxSpares, dialing new connections as
// needed. Call it in the background after a reconnect, not inline on
// the hot failure→reconnect path.
func (p *WarmPool) Refill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.curSpares < p.maxSpares {
		conn, err := p.dial(p.addr)
		if err != nil {
			return err
		}
		p.curSpares++
		select {
		case p.spares <- conn:
		default:
			conn.Close()
			p.curSpares--
			return nil
		}
	}
	return nil
}

// Take returns one spare connection if available, or dials one fresh
// if the pool is empty. It never blocks: an empty, at-capacity pool
// dials synchronously instead of waiting on a spare being returned,
// because the reconnect path cannot afford to block on a pool that
// only exists to be an optimization.
func (p *WarmPool) Take() (net.Conn, error) {
	select {
	case conn := <-p.spares:
		p.mu.Lock()
		p.curSpares--
		p.mu.Unlock()
		return conn, nil
	default:
		return p.dial(p.addr)
	}
}

// Close drains and closes every spare connection.
func (p *WarmPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.spares)
	var firstErr error
	for conn := range p.spares {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.curSpares = 0
	if firstErr != nil {
		return fmt.Errorf("transport: closing warm pool: %w", firstErr)
	}
	return nil
}
