// etcd_directory.go adapts the structuring repo's etcd-backed service
// registry (registry/etcd_registry.go) into a peer-address directory.
// Registration still uses a TTL lease so a peer that crashes without
// deregistering eventually disappears instead of leaving a stale
// address behind; discovery still lists everything under a prefix.
// What changed is the key shape: one peer, one set of addresses,
// rather than one service name fanning out to many instances.
package peerdir

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdDirectory implements Directory using etcd v3 as the backing
// store for "which address(es) is peer X reachable at right now."
type EtcdDirectory struct {
	client *clientv3.Client
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{client: c}, nil
}

// Announce registers addr as one of peerID's reachable addresses,
// under a TTL-based lease that must be renewed by KeepAlive or the
// entry expires — the same crash-safety property as
// EtcdRegistry.Register, narrowed to a peer directory key space:
// /retransmit/peers/{peerID}/{addr}.
func (d *EtcdDirectory) Announce(ctx context.Context, peerID, addr string, ttlSeconds int64) error {
	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(addr)
	if err != nil {
		return err
	}

	key := "/retransmit/peers/" + peerID + "/" + addr
	if _, err := d.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes addr from peerID's announced addresses, called
// before a clean local shutdown so reconnecting peers stop being
// offered a now-dead address.
func (d *EtcdDirectory) Withdraw(ctx context.Context, peerID, addr string) error {
	_, err := d.client.Delete(ctx, "/retransmit/peers/"+peerID+"/"+addr)
	return err
}

// Resolve lists every address currently announced for peerID.
func (d *EtcdDirectory) Resolve(peerID string) ([]string, error) {
	ctx := context.Background()
	prefix := "/retransmit/peers/" + peerID + "/"

	resp, err := d.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var addr string
		if err := json.Unmarshal(kv.Value, &addr); err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Watch streams updated address lists for peerID whenever etcd reports
// a change under its prefix, re-fetching the full list on each event
// rather than reasoning about individual put/delete events — the same
// simplification EtcdRegistry.Watch makes.
func (d *EtcdDirectory) Watch(peerID string) <-chan []string {
	ctx := context.Background()
	ch := make(chan []string, 1)
	prefix := "/retransmit/peers/" + peerID + "/"

	go func() {
		watchChan := d.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			addrs, err := d.Resolve(peerID)
			if err != nil {
				continue
			}
			ch <- addrs
		}
	}()

	return ch
}
