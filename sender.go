// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import "context"

// controlHub is the subset of [*ControlHandler] the sender and receiver
// workers need: emitting their own initialization notices and, for
// control workers, dispatching received messages into the hub.
type controlHub interface {
	emitInitialized(kind ControlKind, peer NodeID)
	dispatch(msg ControlMessage)
}

// dataSenderWorker owns the outbound half of a data pipe to one peer plus
// the local work queue drained by the endpoints [ChannelManager] hands to
// operators. It frames each payload with its stream id and writes it to
// the pipe; on pipe closure it terminates with [KindDisconnected].
type dataSenderWorker struct {
	peer   NodeID
	sink   FramedSink
	queue  chan Frame
	hub    controlHub
	logger SLogger
	cls    ErrClassifier
}

func newDataSenderWorker(peer NodeID, sink FramedSink, hub controlHub, logger SLogger, cls ErrClassifier) *dataSenderWorker {
	return &dataSenderWorker{
		peer:   peer,
		sink:   sink,
		queue:  make(chan Frame, 256),
		hub:    hub,
		logger: logger,
		cls:    cls,
	}
}

// submit enqueues payload for stream to be sent to this worker's peer.
// Called by a [SendEndpoint] on an inter-node edge.
func (w *dataSenderWorker) submit(stream StreamID, payload []byte) {
	w.queue <- Frame{StreamID: stream, Payload: payload}
}

// run drains the queue and writes each frame to the pipe until ctx is
// done or the pipe fails. It emits DataSenderInitialized once on entry.
func (w *dataSenderWorker) run(ctx context.Context) error {
	w.hub.emitInitialized(DataSenderInitialized, w.peer)
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-w.queue:
			if err := w.sink.Send(ctx, frame); err != nil {
				w.logger.Info("dataSenderDone", "peer", w.peer, "err", err, "errClass", w.cls.Classify(err))
				return NewPeerError(KindDisconnected, w.peer, err)
			}
		}
	}
}

// controlSenderWorker owns the outbound half of a control pipe to one
// peer. The orchestrator's own broadcasts are delivered through send;
// the worker itself only emits its own initialization notice.
type controlSenderWorker struct {
	peer   NodeID
	sink   FramedSink
	hub    controlHub
	logger SLogger
	cls    ErrClassifier
}

func newControlSenderWorker(peer NodeID, sink FramedSink, hub controlHub, logger SLogger, cls ErrClassifier) *controlSenderWorker {
	return &controlSenderWorker{peer: peer, sink: sink, hub: hub, logger: logger, cls: cls}
}

// send encodes and writes msg to the peer.
func (w *controlSenderWorker) send(ctx context.Context, msg ControlMessage) error {
	payload, err := encodeControlMessage(msg)
	if err != nil {
		return NewPeerError(KindSerialization, w.peer, err)
	}
	if err := w.sink.Send(ctx, Frame{Payload: payload}); err != nil {
		w.logger.Info("controlSenderDone", "peer", w.peer, "err", err, "errClass", w.cls.Classify(err))
		return NewPeerError(KindDisconnected, w.peer, err)
	}
	return nil
}

// announce emits this worker's own ControlSenderInitialized notice.
func (w *controlSenderWorker) announce() {
	w.hub.emitInitialized(ControlSenderInitialized, w.peer)
}
