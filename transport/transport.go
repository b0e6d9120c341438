// Package transport defines the Transport capability spec.md §6
// requires from an external collaborator, plus one reference adapter
// (tcptransport) built directly on net.Conn.
//
// The core Retransmitter engine only ever talks to this interface: it
// has no notion of sockets, dialing, or reconnect loops of its own
// (spec.md §1 places "the concrete transport implementation" out of
// scope). Everything in this package is glue around that boundary, not
// part of the protocol engine.
package transport

// ReadyState mirrors the read-only ready_state observable spec.md §6
// requires of a Transport.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Message is a single transport-framed message: either a binary buffer
// or a text string, never both. The engine preserves this distinction
// end to end (spec.md §4.1, design notes).
type Message struct {
	Binary bool
	Data   []byte
	Text   string
}

// CloseEvent carries the close code, reason, and clean-shutdown flag a
// Transport reports when it closes (spec.md §6).
type CloseEvent struct {
	Code   uint16
	Reason string
	Clean  bool
}

// Handlers bundles the four event callbacks spec.md §6 requires:
// open, message, error, close. A Transport implementation is expected
// to hold at most one bound Handlers value at a time; Bind returns an
// unbind function so a caller (retransmitter.Retransmitter.UseTransport)
// can detach the previous transport's bindings before attaching new
// ones, per the design notes' "re-bindings must be detachable on
// transport swap."
type Handlers struct {
	OnOpen    func()
	OnMessage func(Message)
	OnError   func(error)
	OnClose   func(CloseEvent)
}

// Transport is the abstract capability spec.md §6 describes: a
// web-socket-like connection with at most one active member in its
// slot at a time, message-framed sends, and observable lifecycle
// state. The engine treats it as an external collaborator it does not
// own the lifecycle of.
type Transport interface {
	ReadyState() ReadyState
	BufferedAmount() int
	URL() string
	Extensions() string
	Protocol() string

	// SetBinaryMode configures whether inbound messages should be
	// delivered as raw byte buffers. The engine always requests binary
	// mode, per spec.md §6 "the engine expects raw byte buffers on the
	// receive side."
	SetBinaryMode(binary bool)

	Send(msg Message) error
	Close(code uint16, reason string) error

	// Bind registers the engine's event handlers, returning a function
	// that detaches them. Calling Bind again while a previous binding
	// is still attached is a programmer error in callers; this package
	// does not defend against it itself.
	Bind(h Handlers) (unbind func())
}
