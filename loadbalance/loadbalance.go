// Package loadbalance selects which of a peer's candidate reconnect
// addresses (from peerdir.Directory.Resolve) to dial next.
//
// This is retargeted from the structuring repo's per-request service
// fan-out (pick one of N service instances for this call) to
// per-reconnect address selection (pick one of N addresses for the one
// peer this Retransmitter already talks to). It never selects among
// distinct peers or distinct logical streams — spec.md's Non-goals
// still exclude multiplexing.
package loadbalance

import "fmt"

// Address is one candidate dial target for a peer, with an optional
// weight for WeightedRandomPicker.
type Address struct {
	Addr   string
	Weight int
}

// AddressPicker selects one address from a candidate list. Called once
// per reconnect attempt, so it does not need to be as cheap as a
// per-request balancer, but must still be goroutine-safe: a caller may
// run concurrent reconnect attempts against different peers sharing
// one picker instance.
type AddressPicker interface {
	Pick(addrs []Address) (Address, error)
	Name() string
}

// ErrNoAddresses is returned when a picker is given an empty candidate
// list — the peer directory has nothing to offer.
var ErrNoAddresses = fmt.Errorf("loadbalance: no candidate addresses available")
