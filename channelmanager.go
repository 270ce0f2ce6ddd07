// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import "fmt"

// ChannelManager is the operator-facing façade that hands out per-stream
// send/receive endpoints, hiding whether a peer is local (in-process
// queue) or remote (routed through a transport sender). Built once per
// node after the communication handshake (Phase C), immutable thereafter.
type ChannelManager struct {
	self      NodeID
	graph     *ScheduledGraph
	receivers *ChannelsToReceivers
	senders   *ChannelsToSenders

	queueCapacity int
}

// NewChannelManager constructs the façade for self over the scheduled
// graph and both routing registries. Every stream declared on one of
// self's operators is resolved exactly once; duplicate registrations are
// a programmer error and abort startup.
func NewChannelManager(self NodeID, graph *ScheduledGraph, receivers *ChannelsToReceivers, senders *ChannelsToSenders) (*ChannelManager, error) {
	mgr := &ChannelManager{
		self:          self,
		graph:         graph,
		receivers:     receivers,
		senders:       senders,
		queueCapacity: 256,
	}
	registered := make(map[StreamID]struct{})
	for _, e := range graph.Graph.Edges {
		consumer, ok := graph.Operator(e.Consumer)
		if !ok {
			return nil, fmt.Errorf("erdos: edge %d consumer %d not found", e.Stream, e.Consumer)
		}
		if consumer.Node != self {
			continue
		}
		// A fanned-out stream may have several consumers on this same
		// node (one edge per consumer); they all share the one queue
		// registered under the stream id per [ChannelsToReceivers]'s
		// "at most one owner per stream-id per node" invariant.
		if _, done := registered[e.Stream]; done {
			continue
		}
		q := newLocalQueue(mgr.queueCapacity)
		if err := receivers.Register(e.Stream, q); err != nil {
			return nil, err
		}
		registered[e.Stream] = struct{}{}
	}
	return mgr, nil
}

// GetSendEndpoint resolves the [SendEndpoint] for stream. Never fails for
// a stream declared on one of self's operators. A stream fanned out to
// consumers on more than one distinct node (see [Edge]) resolves to a
// [SendEndpoint] that writes to every one of them: the local queue at
// most once (however many local operators consume the stream) plus one
// remote submission per distinct remote consuming node.
func (m *ChannelManager) GetSendEndpoint(stream StreamID) (SendEndpoint, error) {
	edges, ok := m.graph.Edges(stream)
	if !ok || len(edges) == 0 {
		return nil, fmt.Errorf("erdos: stream %d not declared in graph", stream)
	}
	var endpoints []SendEndpoint
	seenNodes := make(map[NodeID]struct{}, len(edges))
	for _, e := range edges {
		consumer, ok := m.graph.Operator(e.Consumer)
		if !ok {
			return nil, fmt.Errorf("erdos: edge %d consumer %d not found", stream, e.Consumer)
		}
		if _, dup := seenNodes[consumer.Node]; dup {
			continue
		}
		seenNodes[consumer.Node] = struct{}{}
		if consumer.Node == m.self {
			q, ok := m.receivers.Lookup(stream)
			if !ok {
				return nil, fmt.Errorf("erdos: local stream %d has no registered queue", stream)
			}
			endpoints = append(endpoints, q)
			continue
		}
		w, ok := m.senders.Lookup(consumer.Node)
		if !ok {
			return nil, fmt.Errorf("erdos: no data-sender worker for peer %d", consumer.Node)
		}
		endpoints = append(endpoints, &remoteSendEndpoint{stream: stream, worker: w})
	}
	if len(endpoints) == 1 {
		return endpoints[0], nil
	}
	return &fanoutSendEndpoint{endpoints: endpoints}, nil
}

// GetRecvEndpoint resolves the [ReceiveEndpoint] for stream. Never fails
// for a stream declared on one of self's operators.
func (m *ChannelManager) GetRecvEndpoint(stream StreamID) (ReceiveEndpoint, error) {
	q, ok := m.receivers.Lookup(stream)
	if !ok {
		return nil, fmt.Errorf("erdos: stream %d has no registered local queue", stream)
	}
	return q, nil
}

// remoteSendEndpoint wraps submission into a peer's data-sender worker,
// tagged with the stream the payload belongs to.
type remoteSendEndpoint struct {
	stream StreamID
	worker *dataSenderWorker
}

// Send implements [SendEndpoint].
func (e *remoteSendEndpoint) Send(payload []byte) error {
	e.worker.submit(e.stream, payload)
	return nil
}

// fanoutSendEndpoint submits a payload to every distinct destination of a
// stream that fans out to more than one consuming node: the local queue
// (if any operator on this node consumes the stream) and one remote send
// per distinct remote consuming node.
type fanoutSendEndpoint struct {
	endpoints []SendEndpoint
}

// Send implements [SendEndpoint].
func (f *fanoutSendEndpoint) Send(payload []byte) error {
	for _, e := range f.endpoints {
		if err := e.Send(payload); err != nil {
			return err
		}
	}
	return nil
}
