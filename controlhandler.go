// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"context"
	"fmt"
)

// ControlHandler is the single in-process multiplexer that routes typed
// control events between the transport, the node core, and per-peer
// sender/receiver workers. It is internally a set of bounded queues, one
// per category of event the core awaits: the init-read and AllOp-read
// endpoints are distinct subscriptions so a fast peer's Phase-G broadcast
// can never be mistaken for a Phase-B protocol violation, or vice versa.
type ControlHandler struct {
	senders   map[NodeID]*controlSenderWorker
	receivers map[NodeID]*controlReceiverWorker

	initEvents   chan ControlMessage
	allOpsEvents chan ControlMessage
	violations   chan ControlMessage
}

// NewControlHandler returns a handler with no peers registered yet.
func NewControlHandler() *ControlHandler {
	return &ControlHandler{
		senders:      make(map[NodeID]*controlSenderWorker),
		receivers:    make(map[NodeID]*controlReceiverWorker),
		initEvents:   make(chan ControlMessage, 64),
		allOpsEvents: make(chan ControlMessage, 64),
		violations:   make(chan ControlMessage, 64),
	}
}

// registerControlSender binds peer's outbound control pipe.
func (h *ControlHandler) registerControlSender(peer NodeID, w *controlSenderWorker) {
	h.senders[peer] = w
}

// registerControlReceiver binds peer's inbound control pipe.
func (h *ControlHandler) registerControlReceiver(peer NodeID, w *controlReceiverWorker) {
	h.receivers[peer] = w
}

// broadcastToNodes sends msg on every registered control sender. It fails
// if any sink is disconnected.
func (h *ControlHandler) broadcastToNodes(ctx context.Context, msg ControlMessage) error {
	for peer, w := range h.senders {
		if err := w.send(ctx, msg); err != nil {
			return fmt.Errorf("erdos: broadcast to peer %d: %w", peer, err)
		}
	}
	return nil
}

// emitInitialized implements [controlHub]: a local worker announces its
// own readiness by pushing one of the four *Initialized(peer) events
// directly onto the handler's init queue, exactly as if it had arrived
// from the wire.
func (h *ControlHandler) emitInitialized(kind ControlKind, peer NodeID) {
	h.initEvents <- ControlMessage{Kind: kind, Node: peer}
}

// dispatch implements [controlHub]: a control-receiver worker hands off a
// decoded message for the orchestrator to consume, routed by kind into
// the queue its matching reader subscribes to so that messages destined
// for one phase can never be stolen by the other phase's reader.
func (h *ControlHandler) dispatch(msg ControlMessage) {
	switch {
	case msg.Kind.isInitializationKind():
		h.initEvents <- msg
	case msg.Kind == AllOperatorsInitializedOnNode:
		h.allOpsEvents <- msg
	default:
		h.violations <- msg
	}
}

// readSenderOrReceiverInitialized yields the next initialization control
// message. Any other variant observed in that phase is a protocol
// violation.
func (h *ControlHandler) readSenderOrReceiverInitialized(ctx context.Context) (ControlMessage, error) {
	select {
	case <-ctx.Done():
		return ControlMessage{}, ctx.Err()
	case msg := <-h.initEvents:
		return msg, nil
	case msg := <-h.violations:
		return ControlMessage{}, NewError(KindProtocolViolation,
			fmt.Errorf("expected an initialization message, got %s", msg.Kind))
	}
}

// readAllOperatorsInitializedOnNode yields the next
// AllOperatorsInitializedOnNode event. Any other variant is a protocol
// violation.
func (h *ControlHandler) readAllOperatorsInitializedOnNode(ctx context.Context) (NodeID, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case msg := <-h.allOpsEvents:
		return msg.Node, nil
	case msg := <-h.violations:
		return 0, NewError(KindProtocolViolation,
			fmt.Errorf("expected AllOperatorsInitializedOnNode, got %s", msg.Kind))
	}
}
