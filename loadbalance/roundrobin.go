package loadbalance

import "sync/atomic"

// RoundRobinPicker cycles through a peer's candidate addresses in
// order, so repeated reconnect attempts spread across every known
// address instead of hammering the first one. Lock-free, via an atomic
// counter.
type RoundRobinPicker struct {
	counter int64
}

func (p *RoundRobinPicker) Pick(addrs []Address) (Address, error) {
	if len(addrs) == 0 {
		return Address{}, ErrNoAddresses
	}
	index := atomic.AddInt64(&p.counter, 1) % int64(len(addrs))
	return addrs[index], nil
}

func (p *RoundRobinPicker) Name() string { return "RoundRobin" }
