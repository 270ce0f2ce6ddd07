// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"fmt"
	"sync"
)

// SendEndpoint is handed to a local operator to publish onto one stream.
// For an intra-node edge it is backed by an in-process bounded queue; for
// an inter-node edge it submits into the peer's data-sender worker.
type SendEndpoint interface {
	Send(payload []byte) error
}

// ReceiveEndpoint is handed to a local operator to consume one stream.
type ReceiveEndpoint interface {
	Recv() ([]byte, bool)
}

// localQueue is an in-process bounded channel shared by both the send and
// receive side of an intra-node edge.
type localQueue struct {
	ch chan []byte
}

func newLocalQueue(capacity int) *localQueue {
	return &localQueue{ch: make(chan []byte, capacity)}
}

// Send implements [SendEndpoint].
func (q *localQueue) Send(payload []byte) error {
	q.ch <- payload
	return nil
}

// Recv implements [ReceiveEndpoint]. The second return value is false once
// the queue is closed and drained.
func (q *localQueue) Recv() ([]byte, bool) {
	v, ok := <-q.ch
	return v, ok
}

func (q *localQueue) Close() {
	close(q.ch)
}

// ChannelsToReceivers routes an inbound stream to the local side that
// ultimately hands bytes to an operator. At most one owner exists per
// stream id per node; a stream this node produces but does not consume
// has no entry.
type ChannelsToReceivers struct {
	mu   sync.Mutex
	byID map[StreamID]*localQueue
}

// NewChannelsToReceivers returns an empty registry.
func NewChannelsToReceivers() *ChannelsToReceivers {
	return &ChannelsToReceivers{byID: make(map[StreamID]*localQueue)}
}

// Register binds stream to q. Registering the same stream twice is a
// programmer error and aborts startup.
func (r *ChannelsToReceivers) Register(stream StreamID, q *localQueue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[stream]; dup {
		return NewError(KindProtocolViolation, fmt.Errorf("duplicate receiver registration for stream %d", stream))
	}
	r.byID[stream] = q
	return nil
}

// Lookup returns the queue registered for stream, if any.
func (r *ChannelsToReceivers) Lookup(stream StreamID) (*localQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byID[stream]
	return q, ok
}

// ChannelsToSenders routes outbound traffic for a remote peer to the
// unique data-sender worker that serves it. One entry exists per remote
// peer.
type ChannelsToSenders struct {
	mu   sync.Mutex
	byID map[NodeID]*dataSenderWorker
}

// NewChannelsToSenders returns an empty registry.
func NewChannelsToSenders() *ChannelsToSenders {
	return &ChannelsToSenders{byID: make(map[NodeID]*dataSenderWorker)}
}

// Register binds peer to w. Registering the same peer twice is a
// programmer error and aborts startup.
func (s *ChannelsToSenders) Register(peer NodeID, w *dataSenderWorker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[peer]; dup {
		return NewPeerError(KindProtocolViolation, peer, fmt.Errorf("duplicate sender registration"))
	}
	s.byID[peer] = w
	return nil
}

// Lookup returns the worker registered for peer, if any.
func (s *ChannelsToSenders) Lookup(peer NodeID) (*dataSenderWorker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byID[peer]
	return w, ok
}
