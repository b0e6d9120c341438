// Package framecodec implements the decode side of spec.md §4.1: a
// single-message-at-a-time state machine that tolerates a DATA frame's
// header and body arriving as two separate transport messages.
package framecodec

import "github.com/udev-retransmit/retransmit/frame"

// Decoded is a complete, classified frame ready for the engine to act
// on. Body is only meaningful when Tag == frame.TagData, or when Tag ==
// frame.TagClose and the Decoder was built with closeHasBody.
type Decoded struct {
	Tag           frame.Tag
	LowestUnacked uint32
	Cumulative    uint32
	Body          frame.Payload
}

// Decoder holds the single optional pending header described by
// spec.md §4.1: "the codec holds a single optional pending_header."
// It is not safe for concurrent use; callers must serialize Feed calls
// the same way the rest of the engine is single-threaded cooperative
// (spec.md §5).
//
// By default CLOSE is header-only, per spec.md §9 open question 1's
// chosen resolution. A caller that opts into the closebody compatibility
// layer sets closeHasBody, which makes a CLOSE header pend for a body
// message exactly like DATA does.
type Decoder struct {
	pending      *frame.Header
	closeHasBody bool
}

// NewDecoder builds a Decoder. closeHasBody enables the closebody
// opt-in: a CLOSE header will not be reported until its follow-up body
// message arrives.
func NewDecoder(closeHasBody bool) *Decoder {
	return &Decoder{closeHasBody: closeHasBody}
}

// Feed consumes one incoming transport message.
//
//   - If no header is pending, msg is interpreted as a header. For
//     INITIAL_SERIAL, DATA_ACK, CLOSE_ACK, and (unless closeHasBody is
//     set) CLOSE this yields an immediate Decoded frame. For DATA, and
//     for CLOSE when closeHasBody is set, the header is stashed and Feed
//     returns (nil, nil) until the body arrives.
//   - If a header is pending, msg is the body: Feed returns the
//     completed frame and clears the pending header.
//
// A header message must be binary; a textual message where a header is
// expected is a protocol desync (spec.md §7) and returns a
// *frame.ProtocolError.
func (d *Decoder) Feed(msg frame.Payload) (*Decoded, error) {
	if d.pending == nil {
		if msg.Kind != frame.KindBinary {
			return nil, &frame.ProtocolError{Reason: "expected a binary header frame, got text"}
		}
		h, err := frame.DecodeHeader(msg.Bytes)
		if err != nil {
			return nil, err
		}
		if h.Tag == frame.TagData || (h.Tag == frame.TagClose && d.closeHasBody) {
			pending := h
			d.pending = &pending
			return nil, nil
		}
		return &Decoded{Tag: h.Tag, LowestUnacked: h.LowestUnacked, Cumulative: h.Cumulative}, nil
	}

	// A body was expected; any payload kind is acceptable here.
	tag := d.pending.Tag
	d.pending = nil
	return &Decoded{Tag: tag, Body: msg}, nil
}

// HasPendingHeader reports whether a header is currently awaiting
// its body. Exposed for diagnostics and tests only.
func (d *Decoder) HasPendingHeader() bool {
	return d.pending != nil
}
