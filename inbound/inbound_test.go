package inbound

import (
	"testing"

	"github.com/udev-retransmit/retransmit/frame"
)

func TestOnDataDeliversWhenOpenAndAdvancesSerial(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	res := tr.OnData(frame.BytesPayload([]byte{5}), true)
	if !res.Deliver || res.Serial != 2 {
		t.Fatalf("expected delivery at serial 2, got %+v", res)
	}
	if tr.ProcessedSerial() != 2 {
		t.Fatalf("expected processed_serial=2, got %d", tr.ProcessedSerial())
	}
}

func TestOnDataSuppressesDeliveryWhenNotOpen(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	res := tr.OnData(frame.BytesPayload([]byte{5}), false)
	if res.Deliver {
		t.Fatal("must not deliver while not OPEN")
	}
	if res.ArmTimer {
		t.Fatal("must not arm unack_timer while not OPEN")
	}
	if tr.ProcessedSerial() != 0 {
		t.Fatalf("processed_serial must stay 0, got %d", tr.ProcessedSerial())
	}
	if tr.ReceiveSerial() != 2 {
		t.Fatalf("receive_serial must still advance, got %d", tr.ReceiveSerial())
	}
}

func TestDedupOnReplay(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	bodies := [][]byte{{5}, {6}, {7}, {8}}
	for _, b := range bodies {
		tr.OnData(frame.BytesPayload(b), true)
	}
	if tr.ProcessedSerial() != 8 {
		t.Fatalf("expected processed_serial=8, got %d", tr.ProcessedSerial())
	}

	// Reconnect: peer realigns us and replays a prefix plus one new message.
	tr.ResetReceiveSerial(0)
	replay := [][]byte{{5}, {6}, {7}, {8}, {9}}
	delivered := 0
	for _, b := range replay {
		if tr.OnData(frame.BytesPayload(b), true).Deliver {
			delivered++
		}
	}
	if delivered != 1 {
		t.Fatalf("expected exactly one additional delivery, got %d", delivered)
	}
	if tr.ProcessedSerial() != 10 {
		t.Fatalf("expected processed_serial=10, got %d", tr.ProcessedSerial())
	}
}

func TestAckOnByteThreshold(t *testing.T) {
	tr := NewTracker(1000, 1_000_000)
	body := make([]byte, 400)
	ackedAt := -1
	for i := 0; i < 3; i++ {
		if tr.OnData(frame.BytesPayload(body), true).AckNow {
			ackedAt = i
		}
	}
	if ackedAt != 2 {
		t.Fatalf("expected the ACK to fire on the 3rd frame (1200 > 1000), got ackedAt=%d", ackedAt)
	}
}

func TestAckOnCountThreshold(t *testing.T) {
	tr := NewTracker(1_000_000, 2)
	var fired []bool
	for i := 0; i < 3; i++ {
		fired = append(fired, tr.OnData(frame.BytesPayload([]byte{1}), true).AckNow)
	}
	if fired[0] || fired[1] || !fired[2] {
		t.Fatalf("expected ACK only on the 3rd frame (count 3 > 2), got %v", fired)
	}
}

func TestArmTimerOnlyOnFirstUnackedMessage(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	r0 := tr.OnData(frame.BytesPayload([]byte{1}), true)
	r1 := tr.OnData(frame.BytesPayload([]byte{1}), true)
	if !r0.ArmTimer {
		t.Fatal("expected ArmTimer on the first unacked message")
	}
	if r1.ArmTimer {
		t.Fatal("must not re-arm the timer for subsequent unacked messages")
	}
}

func TestArmTimerSuppressedWhenNotOpen(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	res := tr.OnData(frame.BytesPayload([]byte{1}), false)
	if res.ArmTimer {
		t.Fatal("unack_timer must never be armed while ready_state != OPEN")
	}
}

func TestAckOnTimerFireResetsAccumulators(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	tr.OnData(frame.BytesPayload([]byte{1, 2, 3}), true)
	cumulative := tr.AckOnTimerFire()
	if cumulative != tr.ProcessedSerial() {
		t.Fatalf("expected ack value %d, got %d", tr.ProcessedSerial(), cumulative)
	}
	// A subsequent frame should need a fresh round of accumulation before
	// crossing a tight threshold again.
	tr2 := NewTracker(2, 1_000_000)
	tr2.OnData(frame.BytesPayload([]byte{1}), true)
	tr2.AckOnTimerFire()
	if tr2.OnData(frame.BytesPayload([]byte{1}), true).AckNow {
		t.Fatal("accumulator must have been reset by the timer fire")
	}
}
