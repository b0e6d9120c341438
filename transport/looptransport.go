package transport

import (
	"errors"
	"sync"
	"sync/atomic"
)

// LoopTransport is an in-memory Transport implementation used by tests:
// two instances created by NewLoopPair are wired directly to each other,
// standing in for a real socket so retransmitter tests can run
// deterministically without a listener, matching the shape of
// test/integration_test.go's server-then-client wiring but without the
// network.
//
// Delivery happens on a per-transport dispatch goroutine, not inline
// inside Send, so that a handler reacting to an inbound message (e.g.
// sending an immediate ACK) never re-enters the sender's own call stack
// and deadlocks on its caller's lock.
type LoopTransport struct {
	url            string
	state          atomic.Int32
	bufferedAmount atomic.Int64

	peer  *LoopTransport
	inbox chan Message

	handlersMu sync.Mutex
	handlers   Handlers

	stopOnce sync.Once
	stopCh   chan struct{}

	dropMu sync.Mutex
	dropFn func(Message) bool
}

// NewLoopPair builds two LoopTransport values wired to each other. Both
// start in StateConnecting; call Start on each to bring it OPEN and fire
// its bound OnOpen handler.
func NewLoopPair(urlA, urlB string) (a, b *LoopTransport) {
	a = &LoopTransport{url: urlA, inbox: make(chan Message, 256), stopCh: make(chan struct{})}
	b = &LoopTransport{url: urlB, inbox: make(chan Message, 256), stopCh: make(chan struct{})}
	a.peer, b.peer = b, a
	a.state.Store(int32(StateConnecting))
	b.state.Store(int32(StateConnecting))
	return a, b
}

// SetDropPredicate installs a function Send consults to silently drop a
// message instead of delivering it, simulating packet loss. Pass nil to
// stop dropping.
func (t *LoopTransport) SetDropPredicate(fn func(Message) bool) {
	t.dropMu.Lock()
	t.dropFn = fn
	t.dropMu.Unlock()
}

// Start transitions the transport to OPEN, launches its dispatch
// goroutine, and fires the bound OnOpen handler synchronously (matching
// tcptransport.Start).
func (t *LoopTransport) Start() {
	t.state.Store(int32(StateOpen))
	go t.dispatchLoop()
	h := t.snapshotHandlers()
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (t *LoopTransport) dispatchLoop() {
	for {
		select {
		case msg := <-t.inbox:
			h := t.snapshotHandlers()
			if h.OnMessage != nil {
				h.OnMessage(msg)
			}
		case <-t.stopCh:
			return
		}
	}
}

func (t *LoopTransport) snapshotHandlers() Handlers {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	return t.handlers
}

func (t *LoopTransport) ReadyState() ReadyState { return ReadyState(t.state.Load()) }
func (t *LoopTransport) BufferedAmount() int    { return int(t.bufferedAmount.Load()) }
func (t *LoopTransport) URL() string            { return t.url }
func (t *LoopTransport) Extensions() string     { return "" }
func (t *LoopTransport) Protocol() string       { return "" }
func (t *LoopTransport) SetBinaryMode(bool)     {}

func (t *LoopTransport) Bind(h Handlers) (unbind func()) {
	t.handlersMu.Lock()
	t.handlers = h
	t.handlersMu.Unlock()
	return func() {
		t.handlersMu.Lock()
		t.handlers = Handlers{}
		t.handlersMu.Unlock()
	}
}

func (t *LoopTransport) Send(msg Message) error {
	if t.ReadyState() != StateOpen {
		return errors.New("looptransport: send on a transport that is not OPEN")
	}
	t.dropMu.Lock()
	drop := t.dropFn
	t.dropMu.Unlock()
	if drop != nil && drop(msg) {
		return nil
	}
	peer := t.peer
	if peer == nil {
		return errors.New("looptransport: no peer wired")
	}
	select {
	case peer.inbox <- msg:
	default:
		// Inbox full: simulate the message being lost under backpressure
		// rather than blocking the sender.
	}
	return nil
}

// Close performs a clean local close and reports a non-clean close to
// the peer, mirroring a real socket: closing one end surfaces a broken
// connection on the other.
func (t *LoopTransport) Close(code uint16, reason string) error {
	if t.ReadyState() == StateClosed {
		return nil
	}
	t.state.Store(int32(StateClosed))
	t.stopOnce.Do(func() { close(t.stopCh) })
	h := t.snapshotHandlers()
	if h.OnClose != nil {
		h.OnClose(CloseEvent{Code: code, Reason: reason, Clean: true})
	}
	if t.peer != nil && t.peer.ReadyState() == StateOpen {
		t.peer.Partition()
	}
	return nil
}

// Partition simulates the underlying connection breaking without either
// side having called Close — a dropped link, not an orderly shutdown.
func (t *LoopTransport) Partition() {
	if t.ReadyState() == StateClosed {
		return
	}
	t.state.Store(int32(StateClosed))
	t.stopOnce.Do(func() { close(t.stopCh) })
	h := t.snapshotHandlers()
	if h.OnClose != nil {
		h.OnClose(CloseEvent{Code: 1006, Reason: "simulated partition", Clean: false})
	}
}
