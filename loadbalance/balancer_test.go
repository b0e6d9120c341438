package loadbalance

import (
	"fmt"
	"testing"
)

var testAddrs = []Address{
	{Addr: ":8001", Weight: 10},
	{Addr: ":8002", Weight: 5},
	{Addr: ":8003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	p := &RoundRobinPicker{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		a, err := p.Pick(testAddrs)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = a.Addr
	}

	a, _ := p.Pick(testAddrs)
	if a.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], a.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	p := &RoundRobinPicker{}
	_, err := p.Pick(nil)
	if err != ErrNoAddresses {
		t.Fatalf("expect ErrNoAddresses, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	p := &WeightedRandomPicker{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		a, err := p.Pick(testAddrs)
		if err != nil {
			t.Fatal(err)
		}
		counts[a.Addr]++
	}

	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomAllZero(t *testing.T) {
	p := &WeightedRandomPicker{}
	_, err := p.Pick([]Address{{Addr: ":1", Weight: 0}, {Addr: ":2", Weight: 0}})
	if err == nil {
		t.Fatal("expect error when all weights are zero")
	}
}

func TestConsistentHash(t *testing.T) {
	p := NewConsistentHashPicker()
	p.Rebuild(testAddrs)

	a1, err := p.PickFor("session-123")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := p.PickFor("session-123")
	if a1.Addr != a2.Addr {
		t.Fatalf("same key mapped to different addresses: %s vs %s", a1.Addr, a2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		a, _ := p.PickFor(fmt.Sprintf("key-%d", i))
		seen[a.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different addresses, got %d", len(seen))
	}
}

func TestConsistentHashNoAddresses(t *testing.T) {
	p := NewConsistentHashPicker()
	_, err := p.PickFor("k")
	if err != ErrNoAddresses {
		t.Fatalf("expect ErrNoAddresses, got %v", err)
	}
}
