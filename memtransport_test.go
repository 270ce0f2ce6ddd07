// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"context"
	"errors"
	"sync"
)

// memChan is an in-process duplex channel used by memTransport to stand
// in for a real wire pipe in tests: one memChan backs exactly one
// direction of one lane between one ordered pair of nodes. It implements
// both [FramedSink] and [FramedSource] since nothing about this fake
// needs the two halves to be distinct objects.
type memChan struct {
	ch     chan Frame
	closed chan struct{}
	once   sync.Once
}

func newMemChan() *memChan {
	return &memChan{ch: make(chan Frame, 256), closed: make(chan struct{})}
}

func (m *memChan) Send(ctx context.Context, frame Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return NewError(KindDisconnected, errors.New("memtransport: pipe closed"))
	case m.ch <- frame:
		return nil
	}
}

func (m *memChan) Recv(ctx context.Context) (Frame, error) {
	select {
	case f := <-m.ch:
		return f, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f := <-m.ch:
		return f, nil
	case <-m.closed:
		return Frame{}, NewError(KindDisconnected, errors.New("memtransport: pipe closed"))
	}
}

func (m *memChan) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// memKey identifies one directional channel within a [memHub]: lane,
// sender, receiver.
type memKey struct {
	lane     Lane
	from, to NodeID
}

// memHub is the shared fake wire every [memTransport] sharing it connects
// through: node i's Sink to node j is node j's Src from node i. It also
// tracks which nodes have reached Connect, so that Connect can block
// until every peer has too — the same guarantee a real point-to-point
// transport gets for free from the underlying dial/accept handshake.
type memHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	chans   map[memKey]*memChan
	present map[NodeID]struct{}
}

func newMemHub() *memHub {
	h := &memHub{chans: make(map[memKey]*memChan), present: make(map[NodeID]struct{})}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *memHub) get(lane Lane, from, to NodeID) *memChan {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := memKey{lane, from, to}
	c, ok := h.chans[key]
	if !ok {
		c = newMemChan()
		h.chans[key] = c
	}
	return c
}

// arrive marks self as present and wakes any Connect call blocked in
// awaitPeers.
func (h *memHub) arrive(self NodeID) {
	h.mu.Lock()
	h.present[self] = struct{}{}
	h.mu.Unlock()
	h.cond.Broadcast()
}

// awaitPeers blocks until every id in peers has called arrive, or ctx is
// done. The helper goroutine does not watch ctx: after a cancellation it
// keeps waiting until every id in peers has arrived.
func (h *memHub) awaitPeers(ctx context.Context, peers []NodeID) error {
	done := make(chan struct{})
	go func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for {
			allPresent := true
			for _, p := range peers {
				if _, ok := h.present[p]; !ok {
					allPresent = false
					break
				}
			}
			if allPresent {
				close(done)
				return
			}
			h.cond.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.cond.Broadcast() // wakes the helper goroutine, which rechecks presence and waits again
		return ctx.Err()
	}
}

// memTransport implements [Transport] over a shared [memHub], instead of
// real sockets, so node-level lifecycle tests run fast and deterministically
// in a single process — the same role the teacher's netstub fakes play
// for its own Func pipelines, adapted here to a multi-node topology
// instead of a single connection.
type memTransport struct {
	hub   *memHub
	delay func(self NodeID) <-chan struct{} // optional per-node startup delay hook
}

func newMemTransport(hub *memHub) *memTransport {
	return &memTransport{hub: hub}
}

func (t *memTransport) Connect(ctx context.Context, self NodeID, peers []NodeID) ([]Pipe, []Pipe, error) {
	if t.delay != nil {
		select {
		case <-t.delay(self):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	t.hub.arrive(self)
	if err := t.hub.awaitPeers(ctx, peers); err != nil {
		return nil, nil, err
	}
	control := make([]Pipe, 0, len(peers))
	data := make([]Pipe, 0, len(peers))
	for _, p := range peers {
		control = append(control, Pipe{Peer: p, Sink: t.hub.get(LaneControl, self, p), Src: t.hub.get(LaneControl, p, self)})
		data = append(data, Pipe{Peer: p, Sink: t.hub.get(LaneData, self, p), Src: t.hub.get(LaneData, p, self)})
	}
	return control, data, nil
}

func (t *memTransport) Close() error { return nil }
