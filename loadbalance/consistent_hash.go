package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
)

// ConsistentHashPicker maps a stable key (e.g. a session ID) to one of
// a peer's candidate addresses using a hash ring, so the same session
// keeps preferring the same address across repeated reconnects instead
// of bouncing between candidates — useful when the addresses are
// different shards of a stateful peer holding per-session state.
//
// Unlike RoundRobinPicker and WeightedRandomPicker, this does not
// implement AddressPicker: consistent hashing needs a key, not just a
// candidate list.
type ConsistentHashPicker struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]Address
}

// NewConsistentHashPicker creates a hash ring with 100 virtual nodes
// per address.
func NewConsistentHashPicker() *ConsistentHashPicker {
	return &ConsistentHashPicker{
		replicas: 100,
		nodes:    make(map[uint32]Address),
	}
}

// Rebuild replaces the ring's contents with addrs — called whenever
// peerdir.Directory.Watch reports the peer's candidate addresses
// changed.
func (p *ConsistentHashPicker) Rebuild(addrs []Address) {
	p.ring = p.ring[:0]
	p.nodes = make(map[uint32]Address, len(addrs)*p.replicas)
	for _, a := range addrs {
		for i := 0; i < p.replicas; i++ {
			key := fmt.Sprintf("%s#%d", a.Addr, i)
			hash := crc32.ChecksumIEEE([]byte(key))
			p.ring = append(p.ring, hash)
			p.nodes[hash] = a
		}
	}
	sort.Slice(p.ring, func(i, j int) bool { return p.ring[i] < p.ring[j] })
}

// PickFor returns the address the ring currently maps key to.
func (p *ConsistentHashPicker) PickFor(key string) (Address, error) {
	if len(p.ring) == 0 {
		return Address{}, ErrNoAddresses
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(p.ring), func(i int) bool { return p.ring[i] >= hash })
	if idx == len(p.ring) {
		idx = 0
	}
	return p.nodes[p.ring[idx]], nil
}

func (p *ConsistentHashPicker) Name() string { return "ConsistentHash" }
