// tcptransport.go provides a reference Transport implementation over a
// plain net.Conn, solving the same sticky-message problem the
// structuring repo's protocol package solves for its own frames: each
// message is sent as a small fixed header (kind + length) followed by
// exactly that many bytes.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

const (
	kindBinary byte = 0
	kindText   byte = 1

	msgHeaderLen = 5 // 1 byte kind + 4 bytes length, big-endian
)

// TCPTransport adapts a net.Conn into the Transport capability. It
// owns a single background read loop (recvLoop) and a write mutex
// serializing Send calls, mirroring
// transport.ClientTransport.recvLoop/sending from the structuring
// repo: reads must stay sequential to parse message boundaries, writes
// must stay atomic so two messages never interleave.
type TCPTransport struct {
	conn net.Conn
	url  string

	writeMu sync.Mutex
	state   atomic.Int32 // ReadyState

	bufferedAmount atomic.Int64

	handlersMu sync.Mutex
	handlers   Handlers
}

// NewTCPTransport wraps conn, which must already be connected. url is
// purely observational (spec.md §6's read-only url field); it has no
// effect on dialing since the conn is already established.
func NewTCPTransport(conn net.Conn, url string) *TCPTransport {
	t := &TCPTransport{conn: conn, url: url}
	t.state.Store(int32(StateConnecting))
	return t
}

// Start begins the background read loop and immediately reports OPEN,
// mirroring a web socket whose underlying TCP handshake has already
// completed by the time the caller gets a connected net.Conn.
func (t *TCPTransport) Start() {
	t.state.Store(int32(StateOpen))
	t.handlersMu.Lock()
	onOpen := t.handlers.OnOpen
	t.handlersMu.Unlock()
	if onOpen != nil {
		onOpen()
	}
	go t.recvLoop()
}

func (t *TCPTransport) ReadyState() ReadyState { return ReadyState(t.state.Load()) }
func (t *TCPTransport) BufferedAmount() int    { return int(t.bufferedAmount.Load()) }
func (t *TCPTransport) URL() string            { return t.url }
func (t *TCPTransport) Extensions() string     { return "" }
func (t *TCPTransport) Protocol() string       { return "" }

// SetBinaryMode is a no-op here: TCPTransport always frames messages
// with an explicit kind byte, so binary and textual payloads are never
// ambiguous the way a raw net.Conn byte stream would otherwise make
// them.
func (t *TCPTransport) SetBinaryMode(bool) {}

func (t *TCPTransport) Bind(h Handlers) (unbind func()) {
	t.handlersMu.Lock()
	t.handlers = h
	t.handlersMu.Unlock()
	return func() {
		t.handlersMu.Lock()
		t.handlers = Handlers{}
		t.handlersMu.Unlock()
	}
}

// Send writes one framed message. The write mutex prevents two Send
// calls (or a Send racing a Close) from interleaving bytes on the
// wire, the same guarantee client_transport.go's sending mutex gives
// its header+body pairs.
func (t *TCPTransport) Send(msg Message) error {
	if ReadyState(t.state.Load()) != StateOpen {
		return fmt.Errorf("tcptransport: send while not OPEN")
	}

	var kind byte
	var payload []byte
	if msg.Binary {
		kind = kindBinary
		payload = msg.Data
	} else {
		kind = kindText
		payload = []byte(msg.Text)
	}

	header := make([]byte, msgHeaderLen)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := t.conn.Write(payload); err != nil {
			return err
		}
	}
	t.bufferedAmount.Add(int64(len(payload) + msgHeaderLen))
	return nil
}

// Close closes the underlying connection and reports a clean close to
// the bound handler.
func (t *TCPTransport) Close(code uint16, reason string) error {
	if !t.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!t.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return nil
	}
	err := t.conn.Close()
	t.state.Store(int32(StateClosed))
	t.fireClose(CloseEvent{Code: code, Reason: reason, Clean: true})
	return err
}

// recvLoop runs in its own goroutine, continuously reading framed
// messages and dispatching them to the bound OnMessage handler. A read
// error ends the loop and reports a close: a clean EOF from the peer
// closing is reported as a clean close, any other error first goes to
// OnError and is reported as an unclean close. Either way the engine's
// own close-timer
// and retransmit-on-reconnect machinery take over, exactly as spec.md
// §7 prescribes ("Transport closed mid-session: not an
// application-visible error; triggers the close-timer and awaits
// reconnect").
func (t *TCPTransport) recvLoop() {
	header := make([]byte, msgHeaderLen)
	for {
		if _, err := io.ReadFull(t.conn, header); err != nil {
			t.handleReadError(err)
			return
		}
		kind := header[0]
		length := binary.BigEndian.Uint32(header[1:5])
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(t.conn, payload); err != nil {
				t.handleReadError(err)
				return
			}
		}

		msg := Message{Binary: kind == kindBinary}
		if msg.Binary {
			msg.Data = payload
		} else {
			msg.Text = string(payload)
		}

		t.handlersMu.Lock()
		onMessage := t.handlers.OnMessage
		t.handlersMu.Unlock()
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

func (t *TCPTransport) handleReadError(err error) {
	if t.state.Swap(int32(StateClosed)) == int32(StateClosed) {
		return
	}
	clean := err == io.EOF
	if !clean {
		t.handlersMu.Lock()
		onError := t.handlers.OnError
		t.handlersMu.Unlock()
		if onError != nil {
			onError(err)
		}
	}
	t.fireClose(CloseEvent{Clean: clean})
}

func (t *TCPTransport) fireClose(ev CloseEvent) {
	t.handlersMu.Lock()
	onClose := t.handlers.OnClose
	t.handlersMu.Unlock()
	if onClose != nil {
		onClose(ev)
	}
}
