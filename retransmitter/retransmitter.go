// Package retransmitter is the public façade of the reliable,
// order-preserving delivery engine: it composes frame, framecodec,
// outbuf, inbound, and closefsm around a single Transport slot.
//
// Grounded on the structuring repo's Server (the top-level object that
// owns a listener/transport and wires sub-parts together) and Client
// (the object application code calls Send against), generalized from
// RPC call/response correlation to opaque ordered message delivery.
package retransmitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/udev-retransmit/retransmit/closefsm"
	"github.com/udev-retransmit/retransmit/frame"
	"github.com/udev-retransmit/retransmit/framecodec"
	"github.com/udev-retransmit/retransmit/inbound"
	"github.com/udev-retransmit/retransmit/metrics"
	"github.com/udev-retransmit/retransmit/outbuf"
	"github.com/udev-retransmit/retransmit/transport"
)

// Retransmitter is one wrapped end of the reliable delivery session. All
// entry points — Send, Close, UseTransport, and the transport callbacks —
// serialize behind mu, matching spec.md §5's single-threaded cooperative
// model: the mutex stands in for what a purely single-threaded host
// environment gets for free.
type Retransmitter struct {
	mu sync.Mutex

	cfg        Config
	logger     *zap.SugaredLogger
	sessionID  uuid.UUID
	metrics    *metrics.Metrics

	decoder  *framecodec.Decoder
	outbound outbuf.Buffer
	inTrack  *inbound.Tracker
	closeFSM closefsm.FSM

	xport        transport.Transport
	unbindXport  func()
	reconnecting bool

	unackTimer *time.Timer
	closeTimer *time.Timer

	pendingErr error

	onMessage func(frame.Payload)
	onError   func(error)
	onClose   func(closefsm.CloseDescriptor)
}

// New builds a Retransmitter in CONNECTING with an empty buffer, per
// spec.md §3's lifecycle. Attach a transport with UseTransport to begin
// the session.
func New(cfg Config) *Retransmitter {
	cfg = cfg.withDefaults()
	return &Retransmitter{
		cfg:       cfg,
		logger:    cfg.Logger,
		sessionID: uuid.New(),
		metrics:   cfg.Metrics,
		decoder:   framecodec.NewDecoder(cfg.CloseBodyCodec != nil),
		inTrack:   inbound.NewTracker(cfg.MaxUnackBytes, cfg.MaxUnackMessages),
	}
}

// SessionID identifies this wrapper instance across reconnects, for
// cross-log correlation.
func (r *Retransmitter) SessionID() string { return r.sessionID.String() }

// OnMessage registers the callback invoked with each delivered, deduped,
// in-order application payload.
func (r *Retransmitter) OnMessage(fn func(frame.Payload)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMessage = fn
}

// OnError registers the callback invoked at most once, immediately
// before the close callback, carrying any transport error captured as
// pending_error (spec.md §7).
func (r *Retransmitter) OnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// OnClose registers the callback invoked exactly once when the engine
// reaches CLOSED.
func (r *Retransmitter) OnClose(fn func(closefsm.CloseDescriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = fn
}

// ReadyState reports the engine's ready_state.
func (r *Retransmitter) ReadyState() closefsm.ReadyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeFSM.State()
}

// BufferedAmount sums the size of every frame still awaiting
// acknowledgement plus the current transport's own buffered amount, per
// spec.md §6.
func (r *Retransmitter) BufferedAmount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.outbound.Replay() {
		total += e.Message.Size()
	}
	if r.xport != nil {
		total += r.xport.BufferedAmount()
	}
	return total
}

func (r *Retransmitter) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xport == nil {
		return ""
	}
	return r.xport.URL()
}

func (r *Retransmitter) Extensions() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xport == nil {
		return ""
	}
	return r.xport.Extensions()
}

func (r *Retransmitter) Protocol() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xport == nil {
		return ""
	}
	return r.xport.Protocol()
}

// UseTransport installs t as the live transport slot, per spec.md §4.6.
func (r *Retransmitter) UseTransport(t transport.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.useTransportLocked(t)
}

func (r *Retransmitter) useTransportLocked(t transport.Transport) error {
	if r.closeFSM.State() == closefsm.StateClosed {
		return &frame.ProtocolError{Reason: "use_transport: engine is already CLOSED"}
	}
	state := t.ReadyState()
	if state == transport.StateClosed || state == transport.StateClosing {
		return &frame.ProtocolError{Reason: "use_transport: installed transport is already CLOSED or CLOSING"}
	}
	if r.unbindXport != nil {
		r.unbindXport()
	}
	r.xport = t
	t.SetBinaryMode(true)
	r.unbindXport = t.Bind(transport.Handlers{
		OnOpen:    r.handleTransportOpen,
		OnMessage: r.handleTransportMessage,
		OnError:   r.handleTransportError,
		OnClose:   r.handleTransportClose,
	})
	if state == transport.StateOpen {
		r.onTransportOpenLocked()
	}
	return nil
}

// Send enqueues an application payload for delivery, per spec.md §4.2.
func (r *Retransmitter) Send(p frame.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.closeFSM.State() {
	case closefsm.StateClosing, closefsm.StateClosed:
		return fmt.Errorf("retransmit: cannot send while %s", r.closeFSM.State())
	}
	header := r.outbound.Append(frame.BytesPayload(frame.EncodeDataHeader()))
	body := r.outbound.Append(p)
	if r.transportOpenLocked() {
		r.sendRaw(header.Message)
		r.sendRaw(body.Message)
	}
	if r.metrics != nil {
		r.metrics.FramesSent.WithLabelValues("DATA").Add(2)
		r.updatePendingAckMetricsLocked()
	}
	return nil
}

// updatePendingAckMetricsLocked refreshes the pending-ACK gauges from
// the current outbound buffer contents. Depth and bytes are reported
// together since both move on every Append/AckCumulative.
func (r *Retransmitter) updatePendingAckMetricsLocked() {
	entries := r.outbound.Replay()
	r.metrics.PendingAckDepth.Set(float64(len(entries)))
	bytes := 0
	for _, e := range entries {
		bytes += e.Message.Size()
	}
	r.metrics.PendingAckBytes.Set(float64(bytes))
}

// Close initiates orderly shutdown (spec.md §4.5). A call while already
// CLOSING or CLOSED is a logged no-op, matching the structuring repo's
// own tolerance of a redundant Shutdown call.
func (r *Retransmitter) Close(code uint16, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	desc := closefsm.CloseDescriptor{Code: code, Reason: reason}
	if err := r.closeFSM.LocalClose(desc); err != nil {
		var noop *closefsm.ErrNoOp
		if errors.As(err, &noop) {
			r.logger.Warnw("close is a no-op", "state", noop.State.String(), "session", r.sessionID)
			return nil
		}
		return err
	}
	r.enqueueCloseLocked(desc)
	r.armCloseTimerLocked()
	return nil
}

// CloseDefault closes with spec.md §6's default descriptor (1000, "").
func (r *Retransmitter) CloseDefault() error { return r.Close(1000, "") }

func (r *Retransmitter) transportOpenLocked() bool {
	return r.xport != nil && r.xport.ReadyState() == transport.StateOpen
}

func (r *Retransmitter) sendRaw(p frame.Payload) {
	if !r.transportOpenLocked() {
		return
	}
	msg := transport.Message{Binary: p.Kind == frame.KindBinary, Data: p.Bytes, Text: p.Text}
	if err := r.xport.Send(msg); err != nil {
		r.pendingErr = err
		r.logger.Debugw("transport send failed", "error", err, "session", r.sessionID)
	}
}

func payloadFromMessage(msg transport.Message) frame.Payload {
	if msg.Binary {
		return frame.BytesPayload(msg.Data)
	}
	return frame.TextPayload(msg.Text)
}

func (r *Retransmitter) enqueueCloseLocked(desc closefsm.CloseDescriptor) {
	entry := r.outbound.Append(frame.BytesPayload(frame.EncodeClose()))
	r.sendRaw(entry.Message)
	if r.cfg.CloseBodyCodec != nil {
		body, err := r.cfg.CloseBodyCodec.Encode(desc)
		if err != nil {
			r.logger.Errorw("close body encode failed", "error", err, "session", r.sessionID)
			return
		}
		bodyEntry := r.outbound.Append(frame.BytesPayload(body))
		r.sendRaw(bodyEntry.Message)
	}
}

// --- transport callbacks ---

func (r *Retransmitter) handleTransportOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTransportOpenLocked()
}

func (r *Retransmitter) onTransportOpenLocked() {
	cancel, err := r.closeFSM.MarkOpen()
	if err != nil {
		r.logger.Warnw("transport opened after the engine already reached CLOSED; ignoring", "session", r.sessionID)
		return
	}
	if cancel {
		r.cancelCloseTimerLocked()
	}
	r.reconnecting = false
	r.sendRaw(frame.BytesPayload(frame.EncodeInitialSerial(r.outbound.LowestSerial())))
	for _, entry := range r.outbound.Replay() {
		r.sendRaw(entry.Message)
	}
	r.logger.Infow("transport open", "session", r.sessionID, "state", r.closeFSM.State().String())
}

func (r *Retransmitter) handleTransportMessage(msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dec, err := r.decoder.Feed(payloadFromMessage(msg))
	if err != nil {
		r.logger.Errorw("protocol desync decoding frame", "error", err, "session", r.sessionID)
		panic(err)
	}
	if dec == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.FramesReceived.WithLabelValues(dec.Tag.String()).Inc()
	}
	switch dec.Tag {
	case frame.TagInitialSerial:
		r.inTrack.ResetReceiveSerial(dec.LowestUnacked)
	case frame.TagData:
		r.handleDataLocked(dec.Body)
	case frame.TagDataAck:
		if err := r.outbound.AckCumulative(dec.Cumulative); err != nil {
			r.logger.Errorw("protocol desync on DATA_ACK", "error", err, "session", r.sessionID)
			panic(err)
		}
		if r.metrics != nil {
			r.updatePendingAckMetricsLocked()
		}
	case frame.TagClose:
		r.handleCloseLocked(dec.Body)
	case frame.TagCloseAck:
		r.handleCloseAckLocked()
	}
}

func (r *Retransmitter) handleDataLocked(body frame.Payload) {
	open := r.closeFSM.State() == closefsm.StateOpen
	res := r.inTrack.OnData(body, open)
	if res.Deliver && r.onMessage != nil {
		r.onMessage(body)
	}
	if res.ArmTimer {
		r.armUnackTimerLocked()
	}
	if res.AckNow {
		r.cancelUnackTimerLocked()
		r.sendDataAckLocked(r.inTrack.ProcessedSerial(), "threshold")
	}
}

func (r *Retransmitter) handleCloseLocked(body frame.Payload) {
	desc := closefsm.DefaultCloseDescriptor
	if r.cfg.CloseBodyCodec != nil {
		if decoded, err := r.cfg.CloseBodyCodec.Decode(body.Bytes); err == nil {
			desc = decoded
		}
	}
	wasAlreadyClosing := r.closeFSM.State() == closefsm.StateClosing
	r.closeFSM.ReceiveClose(desc)
	if !wasAlreadyClosing {
		r.cancelCloseTimerLocked()
	}
	r.sendRaw(frame.BytesPayload(frame.EncodeCloseAck()))
	if finalDesc, ok := r.closeFSM.FinalizeReceivedClose(); ok {
		r.finalizeCloseLocked(finalDesc)
	}
}

func (r *Retransmitter) handleCloseAckLocked() {
	desc, err := r.closeFSM.ReceiveCloseAck()
	if err != nil {
		r.logger.Errorw("protocol desync: unsolicited CLOSE_ACK", "error", err, "session", r.sessionID)
		panic(err)
	}
	r.cancelCloseTimerLocked()
	r.finalizeCloseLocked(desc)
}

func (r *Retransmitter) handleTransportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingErr = err
	r.logger.Debugw("transport error", "error", err, "session", r.sessionID)
}

func (r *Retransmitter) handleTransportClose(ev transport.CloseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xport = nil
	if !ev.Clean {
		r.pendingErr = fmt.Errorf("retransmit: transport closed uncleanly: %s (code %d)", ev.Reason, ev.Code)
	}
	if r.closeFSM.TransportFailed() {
		r.armCloseTimerLocked()
	}
	if r.cfg.TransportFactory != nil && !r.reconnecting && r.closeFSM.State() != closefsm.StateClosed {
		r.reconnecting = true
		go r.reconnectLoop()
	}
}

func (r *Retransmitter) reconnectLoop() {
	for {
		r.mu.Lock()
		state := r.closeFSM.State()
		factory := r.cfg.TransportFactory
		interval := r.cfg.ReconnectInterval
		timeout := r.cfg.CloseTimeout
		r.mu.Unlock()
		if state == closefsm.StateClosed || factory == nil {
			return
		}
		time.Sleep(interval)
		if r.metrics != nil {
			r.metrics.ReconnectAttempts.Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		t, err := factory(ctx)
		cancel()
		if err != nil {
			if r.metrics != nil {
				r.metrics.ReconnectFailures.Inc()
			}
			r.logger.Warnw("reconnect attempt failed", "error", err, "session", r.sessionID)
			continue
		}
		r.mu.Lock()
		err = r.useTransportLocked(t)
		r.mu.Unlock()
		if err != nil {
			r.logger.Warnw("reconnect install failed", "error", err, "session", r.sessionID)
			continue
		}
		return
	}
}

// --- timers ---

func (r *Retransmitter) armUnackTimerLocked() {
	if r.unackTimer != nil {
		return
	}
	r.unackTimer = time.AfterFunc(r.cfg.MaxUnackTime, r.fireUnackTimer)
}

func (r *Retransmitter) cancelUnackTimerLocked() {
	if r.unackTimer != nil {
		r.unackTimer.Stop()
		r.unackTimer = nil
	}
}

func (r *Retransmitter) fireUnackTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unackTimer == nil {
		return
	}
	r.unackTimer = nil
	cumulative := r.inTrack.AckOnTimerFire()
	r.sendDataAckLocked(cumulative, "timer")
}

func (r *Retransmitter) sendDataAckLocked(cumulative uint32, trigger string) {
	r.sendRaw(frame.BytesPayload(frame.EncodeDataAck(cumulative)))
	if r.metrics != nil {
		r.metrics.AcksSentByTrigger.WithLabelValues(trigger).Inc()
	}
}

func (r *Retransmitter) armCloseTimerLocked() {
	if r.closeTimer != nil {
		return
	}
	r.closeTimer = time.AfterFunc(r.cfg.CloseTimeout, r.fireCloseTimer)
}

func (r *Retransmitter) cancelCloseTimerLocked() {
	if r.closeTimer != nil {
		r.closeTimer.Stop()
		r.closeTimer = nil
	}
}

func (r *Retransmitter) fireCloseTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeTimer == nil {
		return
	}
	r.closeTimer = nil
	desc, ok := r.closeFSM.CloseTimerFired()
	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.CloseTimeouts.Inc()
	}
	r.finalizeCloseLocked(desc)
}

func (r *Retransmitter) finalizeCloseLocked(desc closefsm.CloseDescriptor) {
	if r.xport != nil {
		// Detach before closing: transports report their own close
		// synchronously, and handleTransportClose would block on r.mu,
		// which is held here.
		xport := r.xport
		if r.unbindXport != nil {
			r.unbindXport()
			r.unbindXport = nil
		}
		r.xport = nil
		if err := xport.Close(desc.Code, desc.Reason); err != nil {
			r.pendingErr = combineErrors(r.pendingErr, err)
		}
	}
	if r.pendingErr != nil && r.onError != nil {
		r.onError(r.pendingErr)
	}
	if r.onClose != nil {
		r.onClose(desc)
	}
	r.logger.Infow("closed", "session", r.sessionID, "code", desc.Code, "reason", desc.Reason)
}

func combineErrors(existing, next error) error {
	if existing == nil {
		return next
	}
	return multierror.Append(existing, next)
}
