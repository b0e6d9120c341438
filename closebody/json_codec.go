package closebody

import (
	"encoding/json"

	"github.com/udev-retransmit/retransmit/closefsm"
)

// JSONCodec encodes a CloseDescriptor as {"code":...,"reason":...},
// matching the structuring JSON codec's direct use of encoding/json with
// no custom framing of its own (the transport message that carries the
// body already marks where it ends).
type JSONCodec struct{}

type wireCloseDescriptor struct {
	Code   uint16 `json:"code"`
	Reason string `json:"reason"`
}

func (JSONCodec) Encode(d closefsm.CloseDescriptor) ([]byte, error) {
	return json.Marshal(wireCloseDescriptor{Code: d.Code, Reason: d.Reason})
}

func (JSONCodec) Decode(data []byte) (closefsm.CloseDescriptor, error) {
	var w wireCloseDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return closefsm.CloseDescriptor{}, err
	}
	return closefsm.CloseDescriptor{Code: w.Code, Reason: w.Reason}, nil
}

func (JSONCodec) Name() string { return "json" }
