package outbuf

import "github.com/udev-retransmit/retransmit/frame"

import "testing"

func TestAppendAssignsIncreasingSerials(t *testing.T) {
	var b Buffer
	e0 := b.Append(frame.BytesPayload([]byte{1}))
	e1 := b.Append(frame.BytesPayload([]byte{2}))
	if e0.Serial != 0 || e1.Serial != 1 {
		t.Fatalf("expected serials 0,1, got %d,%d", e0.Serial, e1.Serial)
	}
	if b.NextSerial() != 2 {
		t.Fatalf("expected next serial 2, got %d", b.NextSerial())
	}
}

func TestAckCumulativeDropsPrefix(t *testing.T) {
	var b Buffer
	for i := 0; i < 4; i++ {
		b.Append(frame.BytesPayload([]byte{byte(i)}))
	}
	if err := b.AckCumulative(2); err != nil {
		t.Fatalf("AckCumulative failed: %v", err)
	}
	if b.LowestSerial() != 2 || b.Len() != 2 {
		t.Fatalf("expected lowest=2 len=2, got lowest=%d len=%d", b.LowestSerial(), b.Len())
	}
	remaining := b.Replay()
	if remaining[0].Serial != 2 || remaining[1].Serial != 3 {
		t.Fatalf("unexpected remaining entries: %+v", remaining)
	}
}

func TestAckCumulativeBelowLowestIsProtocolError(t *testing.T) {
	var b Buffer
	b.Append(frame.BytesPayload([]byte{1}))
	if err := b.AckCumulative(5); err == nil {
		t.Fatal("expected an error acknowledging unsent frames")
	}
	_ = b.AckCumulative(1)
	if err := b.AckCumulative(0); err == nil {
		t.Fatal("expected an error for cumulative below buffer_lowest_serial")
	}
}

func TestReplayIsFullOrderedSnapshot(t *testing.T) {
	var b Buffer
	b.Append(frame.BytesPayload(frame.EncodeDataHeader()))
	b.Append(frame.BytesPayload([]byte{5}))
	entries := b.Replay()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Serial != 0 || entries[1].Serial != 1 {
		t.Fatalf("unexpected serials: %+v", entries)
	}
}
