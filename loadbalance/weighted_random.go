package loadbalance

import (
	"fmt"
	"math/rand"
)

// WeightedRandomPicker favors addresses with a higher Weight — useful
// when a peer's candidate addresses are not equally good (e.g. a
// primary NIC vs. a backup link), so reconnects prefer the primary
// without ruling out the backup entirely.
type WeightedRandomPicker struct{}

func (p *WeightedRandomPicker) Pick(addrs []Address) (Address, error) {
	if len(addrs) == 0 {
		return Address{}, ErrNoAddresses
	}

	totalWeight := 0
	for _, a := range addrs {
		totalWeight += a.Weight
	}
	if totalWeight <= 0 {
		return Address{}, fmt.Errorf("loadbalance: all candidate addresses have zero weight")
	}

	r := rand.Intn(totalWeight)
	for _, a := range addrs {
		r -= a.Weight
		if r < 0 {
			return a, nil
		}
	}
	return Address{}, fmt.Errorf("loadbalance: unexpected error in weighted selection")
}

func (p *WeightedRandomPicker) Name() string { return "WeightedRandom" }
