package peerdir

import "testing"

func TestStaticDirectoryResolve(t *testing.T) {
	d := NewStaticDirectory(map[string][]string{
		"peer-a": {"10.0.0.1:7000", "10.0.0.2:7000"},
	})
	addrs, err := d.Resolve("peer-a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addrs))
	}
}

func TestStaticDirectoryUnknownPeerIsEmpty(t *testing.T) {
	d := NewStaticDirectory(nil)
	addrs, err := d.Resolve("unknown")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("expected no addresses, got %v", addrs)
	}
}

func TestStaticDirectoryIsolatesCallerSlice(t *testing.T) {
	d := NewStaticDirectory(map[string][]string{"p": {"a"}})
	addrs, _ := d.Resolve("p")
	addrs[0] = "mutated"
	again, _ := d.Resolve("p")
	if again[0] != "a" {
		t.Fatal("Resolve must return an independent copy")
	}
}
