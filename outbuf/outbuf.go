// Package outbuf implements the outbound pending_ack buffer of
// spec.md §4.2: every frame the engine has sent but the peer has not
// yet cumulatively acknowledged, in send order, replayable in full on
// reconnect.
//
// The buffer operates at wire-slot granularity, not logical-message
// granularity: a DATA header and its body are two separate slots (see
// spec.md §9 open question 2), each with its own serial. This matches
// the wire DATA_ACK semantics, which count slots.
package outbuf

import "github.com/udev-retransmit/retransmit/frame"

// Entry is one outstanding outbound frame: its wire message and the
// slot serial it was assigned at append time.
type Entry struct {
	Serial  uint32
	Message frame.Payload
}

// Buffer is the pending_ack ordered log. The zero value is an empty
// buffer starting at serial 0.
type Buffer struct {
	lowestSerial uint32
	entries      []Entry
}

// Append adds one outbound wire message and returns the slot entry it
// was assigned. Invariant 1 (spec.md §3) holds by construction: the
// next serial is always lowestSerial + len(entries).
func (b *Buffer) Append(msg frame.Payload) Entry {
	e := Entry{Serial: b.nextSerial(), Message: msg}
	b.entries = append(b.entries, e)
	return e
}

func (b *Buffer) nextSerial() uint32 {
	return b.lowestSerial + uint32(len(b.entries))
}

// LowestSerial returns buffer_lowest_serial: the serial of the first
// entry still retained.
func (b *Buffer) LowestSerial() uint32 { return b.lowestSerial }

// NextSerial returns the serial a brand-new append would receive.
func (b *Buffer) NextSerial() uint32 { return b.nextSerial() }

// Len reports how many slots are currently retained.
func (b *Buffer) Len() int { return len(b.entries) }

// AckCumulative drops every entry whose serial is strictly less than
// cumulative and advances lowestSerial to cumulative, per spec.md
// §4.2. A cumulative value below the current lowestSerial means the
// peer acknowledged something already dropped or never sent — a
// protocol desync (spec.md §7) — and is reported as a
// *frame.ProtocolError rather than silently ignored. A cumulative
// value above nextSerial (acknowledging frames never sent) is the same
// class of bug.
func (b *Buffer) AckCumulative(cumulative uint32) error {
	if cumulative < b.lowestSerial {
		return &frame.ProtocolError{Reason: "DATA_ACK cumulative is below buffer_lowest_serial"}
	}
	if cumulative > b.nextSerial() {
		return &frame.ProtocolError{Reason: "DATA_ACK cumulative acknowledges unsent frames"}
	}
	drop := int(cumulative - b.lowestSerial)
	b.entries = append([]Entry(nil), b.entries[drop:]...)
	b.lowestSerial = cumulative
	return nil
}

// Replay returns every retained entry in send order, for
// retransmission after a transport reconnects (spec.md §4.2).
func (b *Buffer) Replay() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
