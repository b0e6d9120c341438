package closebody

import (
	"testing"

	"github.com/udev-retransmit/retransmit/closefsm"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	var c Codec = JSONCodec{}
	want := closefsm.CloseDescriptor{Code: 4001, Reason: "session expired"}
	data, err := c.Encode(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestJSONCodecDecodeInvalidIsError(t *testing.T) {
	var c Codec = JSONCodec{}
	if _, err := c.Decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error for invalid JSON")
	}
}
