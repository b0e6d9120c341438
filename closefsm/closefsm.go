// Package closefsm implements the ready-state machine and two-phase
// close handshake of spec.md §4.5: the monotone
// CONNECTING → OPEN → CLOSING → CLOSED path, the close-timer grand
// guard, and the distinction between a locally and a peer-initiated
// close.
//
// The FSM never touches a transport or a timer itself — it reports
// what the caller should do (send a frame, arm or cancel a timer,
// deliver a close event) and the caller (retransmitter.Retransmitter)
// performs the side effect. This keeps the state machine deterministic
// and unit-testable without a real clock or socket.
package closefsm

import "github.com/udev-retransmit/retransmit/frame"

// ReadyState mirrors spec.md §3's ready_state values.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CloseDescriptor is the (code, reason) pair eventually delivered to
// the application's close callback.
type CloseDescriptor struct {
	Code   uint16
	Reason string
}

// DefaultCloseDescriptor is delivered when a close is forced by timeout
// with no explicit descriptor on record.
var DefaultCloseDescriptor = CloseDescriptor{Code: 1000, Reason: ""}

// FSM holds ready_state, pending_close, and close_acknowledged
// (spec.md §3). The zero value starts in CONNECTING with no pending
// close, matching a freshly constructed Retransmitter.
type FSM struct {
	state             ReadyState
	pendingClose      *CloseDescriptor
	localInitiated    bool
	closeAcknowledged *bool // nil = unset, matching the tri-state of spec.md §3
}

// State returns the current ready_state.
func (f *FSM) State() ReadyState { return f.state }

// PendingClose returns the close descriptor awaiting acknowledgement,
// or nil if none is pending.
func (f *FSM) PendingClose() *CloseDescriptor { return f.pendingClose }

// MarkOpen records that a transport session has successfully opened —
// the first ever transport, a reconnection, or a freshly installed
// one. It advances CONNECTING → OPEN; OPEN and CLOSING are left
// unchanged (spec.md §4.5: a transport reopening while CLOSING still
// replays the pending CLOSE frame, but ready_state itself only moves
// forward via the close handshake, never back to OPEN).
//
// It reports whether the caller should cancel its close_timer: true in
// every case except when the engine is already CLOSING, per spec.md
// §4.5 "The timer is cancelled on every successful transport OPEN
// unless the engine is already in CLOSING."
//
// Calling MarkOpen once CLOSED is a programmer error (installing a
// transport on an inert engine) and returns a *frame.ProtocolError.
func (f *FSM) MarkOpen() (cancelCloseTimer bool, err error) {
	switch f.state {
	case StateClosed:
		return false, &frame.ProtocolError{Reason: "transport opened after engine reached CLOSED"}
	case StateConnecting:
		f.state = StateOpen
	}
	return f.state != StateClosing, nil
}

// TransportFailed records a transport-level failure or disconnect with
// no local close in progress. Per spec.md §4.5 the engine stays usable
// (CONNECTING collapses to OPEN, since a transport has now been
// attached at least once; OPEN stays OPEN) and the caller should arm
// its close_timer if not already armed. CLOSING/CLOSED are unaffected:
// CLOSING already has its own close_timer running, and CLOSED is inert.
func (f *FSM) TransportFailed() (armCloseTimer bool) {
	switch f.state {
	case StateConnecting:
		f.state = StateOpen
		return true
	case StateOpen:
		return true
	default:
		return false
	}
}

// ErrNoOp is returned by LocalClose when the engine is already
// CLOSING or CLOSED: spec.md §4.5 "A local close() while already
// CLOSING or CLOSED is a no-op (with a warning)."
type ErrNoOp struct{ State ReadyState }

func (e *ErrNoOp) Error() string { return "retransmit: close() is a no-op while " + e.State.String() }

// LocalClose initiates an orderly local shutdown: OPEN/CONNECTING →
// CLOSING, recording desc as pending_close for later delivery once the
// peer's CLOSE_ACK arrives or the close_timer fires.
func (f *FSM) LocalClose(desc CloseDescriptor) error {
	if f.state == StateClosing || f.state == StateClosed {
		return &ErrNoOp{State: f.state}
	}
	f.state = StateClosing
	f.pendingClose = &desc
	f.localInitiated = true
	return nil
}

// ReceiveClose records a peer-initiated CLOSE frame: OPEN/CONNECTING →
// CLOSING, synthesizing desc as the pending close to deliver once the
// local CLOSE_ACK has been sent. If the engine is already CLOSING
// (a locally initiated close crossed with the peer's), the existing
// pending_close — the locally requested one — is kept; the peer's
// CLOSE is still acknowledged by the caller, but it does not overwrite
// what gets delivered to the application.
func (f *FSM) ReceiveClose(desc CloseDescriptor) {
	switch f.state {
	case StateConnecting, StateOpen:
		f.state = StateClosing
		f.pendingClose = &desc
		f.localInitiated = false
	case StateClosing:
		// Crossed closes: keep our own pending_close.
	case StateClosed:
		// Stale frame on an inert engine; nothing to do.
	}
}

// ReceiveCloseAck completes a locally initiated close: CLOSING →
// CLOSED. Per spec.md §7, a CLOSE_ACK with no pending close is a
// programmer-misuse / protocol-desync condition and is fatal.
func (f *FSM) ReceiveCloseAck() (CloseDescriptor, error) {
	if f.pendingClose == nil {
		return CloseDescriptor{}, &frame.ProtocolError{Reason: "CLOSE_ACK received with no pending close"}
	}
	desc := *f.pendingClose
	ack := true
	f.closeAcknowledged = &ack
	f.state = StateClosed
	return desc, nil
}

// CloseTimerFired forces a transition to CLOSED, delivering whatever
// close descriptor is on record (or DefaultCloseDescriptor if none).
// Per spec.md §5, a close_timer is best-effort to cancel, so a caller
// must tolerate a late firing after the engine already reached CLOSED;
// ok is false in that case and no state change occurs.
func (f *FSM) CloseTimerFired() (desc CloseDescriptor, ok bool) {
	if f.state == StateClosed {
		return CloseDescriptor{}, false
	}
	ack := false
	f.closeAcknowledged = &ack
	f.state = StateClosed
	if f.pendingClose != nil {
		return *f.pendingClose, true
	}
	return DefaultCloseDescriptor, true
}

// FinalizeReceivedClose completes a purely peer-initiated close: once
// the local CLOSE_ACK reply has been sent, there is nothing further to
// wait for, so the engine moves straight to CLOSED (spec.md §8 scenario
// 8, "transitions directly to CLOSED"). Calling this when the local side
// was already independently closing (a crossed close, localInitiated
// left true by an earlier LocalClose) is a no-op: that side still needs
// its own CLOSE_ACK from the peer before it can finalize.
func (f *FSM) FinalizeReceivedClose() (desc CloseDescriptor, ok bool) {
	if f.state != StateClosing || f.localInitiated {
		return CloseDescriptor{}, false
	}
	ack := true
	f.closeAcknowledged = &ack
	f.state = StateClosed
	if f.pendingClose != nil {
		return *f.pendingClose, true
	}
	return DefaultCloseDescriptor, true
}

// CloseAcknowledged reports the tri-state outcome of spec.md §3: nil
// while no close has concluded, true once CLOSE_ACK was exchanged
// cleanly, false once the close_timer forced termination.
func (f *FSM) CloseAcknowledged() *bool { return f.closeAcknowledged }
