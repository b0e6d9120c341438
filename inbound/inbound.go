// Package inbound implements the inbound delivery and deduplication
// logic of spec.md §4.3–§4.4: the monotone receive/processed serial
// pair, and the byte/count ACK-threshold bookkeeping. Time-based ACK
// firing is a real timer owned by the caller (retransmitter);
// this package only decides whether a byte or count threshold has been
// crossed, and resets its own accumulators when told an ACK went out.
//
// receive_serial and processed_serial are tracked in the same slot
// units as outbuf.Buffer, not in logical-message units: a DATA frame
// occupies two slots on the sender's side (header, body), so each
// completed DATA frame here advances both serials by 2. This keeps the
// cumulative value reported to AckOnTimerFire/ProcessedSerial directly
// usable as a DATA_ACK argument against the peer's outbuf, and keeps
// ResetReceiveSerial's input (the peer's slot-valued lowest_unacked)
// in the same numbering space.
package inbound

import "github.com/udev-retransmit/retransmit/frame"

// Tracker holds receive_serial, processed_serial, and the unack
// accumulators. The zero value is a valid tracker starting at serial 0
// with no pending inbound bytes; construct with NewTracker to set the
// ACK thresholds.
type Tracker struct {
	maxUnackBytes    int
	maxUnackMessages int

	receiveSerial   uint32
	processedSerial uint32
	unackBytes      int
	unackCount      int
}

// NewTracker builds a Tracker with the given ACK thresholds.
func NewTracker(maxUnackBytes, maxUnackMessages int) *Tracker {
	return &Tracker{maxUnackBytes: maxUnackBytes, maxUnackMessages: maxUnackMessages}
}

// ReceiveSerial returns the current receive_serial.
func (t *Tracker) ReceiveSerial() uint32 { return t.receiveSerial }

// ProcessedSerial returns the current processed_serial, the high-water
// mark of serials actually delivered to the application.
func (t *Tracker) ProcessedSerial() uint32 { return t.processedSerial }

// ResetReceiveSerial realigns receive_serial on an INITIAL_SERIAL
// frame, per spec.md §4.3 and invariant 4.
func (t *Tracker) ResetReceiveSerial(n uint32) { t.receiveSerial = n }

// DataResult reports what OnData decided for one completed DATA frame.
type DataResult struct {
	// Serial is the receive_serial assigned to this frame's body slot,
	// in the same slot units as outbuf.Buffer.
	Serial uint32
	// Deliver is true when the application should be handed the body.
	Deliver bool
	// ArmTimer is true the first time bytes accumulate since the last
	// ACK — the caller should arm its unack_timer if not already armed.
	ArmTimer bool
	// AckNow is true when the byte or count threshold was crossed by
	// this frame; the caller must send DATA_ACK(ProcessedSerial) and
	// cancel its unack_timer. The tracker's own accumulators are
	// already reset when AckNow is true.
	AckNow bool
}

// OnData implements spec.md §4.3 steps 1–5 for one completed DATA
// frame. open must be true only when ready_state == OPEN; a closed or
// closing engine must not deliver to the application even though the
// serial still advances and counts toward the ACK accumulators, and
// per spec.md §4.4 must not arm unack_timer either.
func (t *Tracker) OnData(p frame.Payload, open bool) DataResult {
	t.receiveSerial += 2

	var res DataResult
	res.Serial = t.receiveSerial

	if t.receiveSerial > t.processedSerial && open {
		res.Deliver = true
		t.processedSerial = t.receiveSerial
	}

	t.unackBytes += p.Size()
	t.unackCount++
	res.ArmTimer = t.unackCount == 1 && open

	if t.unackBytes > t.maxUnackBytes || t.unackCount > t.maxUnackMessages {
		res.AckNow = true
		t.resetAccumulators()
	}

	return res
}

// AckOnTimerFire is called when the unack_timer fires. It reports the
// cumulative value to ACK and resets the accumulators, mirroring the
// reset that the byte/count path performs inline. Per spec.md §4.4's
// tie-break rule, callers must guard a late timer firing against a
// threshold-triggered ACK already having fired in the same step —
// OnData's AckNow already cancels the logical timer, so a caller that
// cancels the real timer whenever AckNow is true will never double-fire.
func (t *Tracker) AckOnTimerFire() uint32 {
	cumulative := t.processedSerial
	t.resetAccumulators()
	return cumulative
}

func (t *Tracker) resetAccumulators() {
	t.unackBytes = 0
	t.unackCount = 0
}
