// Package closebody implements the optional CLOSE follow-up body
// described in spec.md §9 open question 1: by default the core engine
// sends a bare CLOSE frame with no body, but an implementer who needs
// wire compatibility with a peer expecting a {code,reason} payload can
// opt in via retransmitter.Config.CloseBodyCodec.
package closebody

import "github.com/udev-retransmit/retransmit/closefsm"

// Codec serializes and deserializes a CloseDescriptor as the body of a
// follow-up transport message (no DATA header of its own) sent
// immediately after CLOSE, mirroring the
// structuring codec package's pluggable Encode/Decode/Type shape.
type Codec interface {
	Encode(d closefsm.CloseDescriptor) ([]byte, error)
	Decode(data []byte) (closefsm.CloseDescriptor, error)
	Name() string
}
