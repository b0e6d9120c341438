// Package frame defines the wire unit of the Retransmitter protocol: the
// typed header and the opaque application payload it may carry.
//
// Frame format (see the module's protocol notes): every header is one
// transport message, 4 bytes for header-only tags and 8 bytes for tags
// that carry a single uint32 argument. All integers are unsigned,
// 32-bit, little-endian. A DATA frame is always two consecutive
// transport messages from the same sender: a 4-byte header followed by
// the opaque body.
package frame

import "encoding/binary"

// Tag identifies which of the five frame variants a header encodes.
type Tag uint32

const (
	TagInitialSerial Tag = 1
	TagData          Tag = 2
	TagDataAck       Tag = 3
	TagClose         Tag = 4
	TagCloseAck      Tag = 5
)

func (t Tag) String() string {
	switch t {
	case TagInitialSerial:
		return "INITIAL_SERIAL"
	case TagData:
		return "DATA"
	case TagDataAck:
		return "DATA_ACK"
	case TagClose:
		return "CLOSE"
	case TagCloseAck:
		return "CLOSE_ACK"
	default:
		return "UNKNOWN"
	}
}

// headerLen reports the encoded byte length of a header for the given
// tag, or 0 if the tag is not a known variant.
func headerLen(t Tag) int {
	switch t {
	case TagInitialSerial, TagDataAck:
		return 8
	case TagData, TagClose, TagCloseAck:
		return 4
	default:
		return 0
	}
}

// Header is the decoded form of a 4- or 8-byte wire header.
type Header struct {
	Tag Tag

	// LowestUnacked is the argument of an INITIAL_SERIAL header.
	LowestUnacked uint32

	// Cumulative is the argument of a DATA_ACK header.
	Cumulative uint32
}

// Kind distinguishes binary and textual payloads. The transport
// preserves this distinction; the engine must not coerce one into the
// other.
type Kind int

const (
	KindBinary Kind = iota
	KindText
)

// Payload is the opaque body of a DATA frame, tagged by kind so binary
// and textual application messages round-trip unchanged.
type Payload struct {
	Kind  Kind
	Bytes []byte // valid when Kind == KindBinary
	Text  string // valid when Kind == KindText
}

// BytesPayload wraps a binary application message.
func BytesPayload(b []byte) Payload { return Payload{Kind: KindBinary, Bytes: b} }

// TextPayload wraps a textual application message.
func TextPayload(s string) Payload { return Payload{Kind: KindText, Text: s} }

// Size reports the logical size of the payload: byte length for binary,
// character (rune) length for text, per spec.md §4.3 step 3.
func (p Payload) Size() int {
	if p.Kind == KindText {
		return len([]rune(p.Text))
	}
	return len(p.Bytes)
}

// ProtocolError marks a BUG-class condition: an impossible frame tag, a
// body arriving without a pending header, a DATA_ACK whose cumulative
// value is below the buffer's retained base, or any other desync that
// means the peer (or the local caller) violated the protocol. Per
// spec.md §7/§9, these are fatal and must fail loudly rather than be
// warned about and tolerated.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "retransmit: protocol error: " + e.Reason }

// EncodeInitialSerial produces the 8-byte INITIAL_SERIAL header.
func EncodeInitialSerial(lowestUnacked uint32) []byte {
	return encodeU32Header(TagInitialSerial, lowestUnacked)
}

// EncodeDataHeader produces the 4-byte DATA header. The body is sent
// separately as its own transport message.
func EncodeDataHeader() []byte {
	return encodeHeaderOnly(TagData)
}

// EncodeDataAck produces the 8-byte DATA_ACK header.
func EncodeDataAck(cumulative uint32) []byte {
	return encodeU32Header(TagDataAck, cumulative)
}

// EncodeClose produces the 4-byte CLOSE header.
func EncodeClose() []byte {
	return encodeHeaderOnly(TagClose)
}

// EncodeCloseAck produces the 4-byte CLOSE_ACK header.
func EncodeCloseAck() []byte {
	return encodeHeaderOnly(TagCloseAck)
}

func encodeHeaderOnly(t Tag) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(t))
	return buf
}

func encodeU32Header(t Tag, arg uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(t))
	binary.LittleEndian.PutUint32(buf[4:8], arg)
	return buf
}

// DecodeHeader parses a 4- or 8-byte header message into its typed
// form. It validates the tag and the message length against what that
// tag requires.
func DecodeHeader(msg []byte) (Header, error) {
	if len(msg) < 4 {
		return Header{}, &ProtocolError{Reason: "header shorter than 4 bytes"}
	}
	tag := Tag(binary.LittleEndian.Uint32(msg[0:4]))
	want := headerLen(tag)
	if want == 0 {
		return Header{}, &ProtocolError{Reason: "unknown frame tag"}
	}
	if len(msg) != want {
		return Header{}, &ProtocolError{Reason: "header length does not match tag"}
	}
	h := Header{Tag: tag}
	switch tag {
	case TagInitialSerial:
		h.LowestUnacked = binary.LittleEndian.Uint32(msg[4:8])
	case TagDataAck:
		h.Cumulative = binary.LittleEndian.Uint32(msg[4:8])
	}
	return h, nil
}
