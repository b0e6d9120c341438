package reconnect

import (
	"context"
	"fmt"

	"github.com/udev-retransmit/retransmit/loadbalance"
	"github.com/udev-retransmit/retransmit/peerdir"
)

// DialFunc opens a transport-level connection to addr. A Retransmitter
// supplies this; Dialer handles which address to try and how to pace and
// observe the attempt.
type DialFunc func(ctx context.Context, addr string) error

// Dialer resolves a peer's candidate addresses via a peerdir.Directory,
// picks one with a loadbalance.AddressPicker, and dials it through a hook
// chain — the piece that ties peerdir+loadbalance+reconnect together for
// a Retransmitter's reconnect loop.
type Dialer struct {
	dir     peerdir.Directory
	picker  loadbalance.AddressPicker
	attempt AttemptFunc
}

// NewDialer builds the hook chain once, so stateful hooks such as
// BackoffHook see successive Attempt calls as one sequence of attempts.
func NewDialer(dir peerdir.Directory, picker loadbalance.AddressPicker, dial DialFunc, hooks ...Hook) *Dialer {
	attempt := Chain(hooks...)(func(ctx context.Context, addr loadbalance.Address) error {
		return dial(ctx, addr.Addr)
	})
	return &Dialer{dir: dir, picker: picker, attempt: attempt}
}

// Attempt resolves peerID's candidate addresses, picks one, and dials it
// through the hook chain. Returns the address it tried and any error.
func (d *Dialer) Attempt(ctx context.Context, peerID string) (loadbalance.Address, error) {
	addrs, err := d.dir.Resolve(peerID)
	if err != nil {
		return loadbalance.Address{}, fmt.Errorf("reconnect: resolve %s: %w", peerID, err)
	}
	candidates := make([]loadbalance.Address, len(addrs))
	for i, a := range addrs {
		candidates[i] = loadbalance.Address{Addr: a, Weight: 1}
	}
	addr, err := d.picker.Pick(candidates)
	if err != nil {
		return loadbalance.Address{}, fmt.Errorf("reconnect: pick address for %s: %w", peerID, err)
	}
	return addr, d.attempt(ctx, addr)
}
