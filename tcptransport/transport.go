//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: bassosimone/nop connect.go
//

package tcptransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/gabrik/erdos"
	"golang.org/x/sync/errgroup"
)

// Transport implements [erdos.Transport] over plain TCP sockets (spec
// §4.1's point-to-point family). For each ordered pair of nodes it opens
// exactly one TCP connection per lane: the node with the larger
// [erdos.NodeID] listens, the node with the smaller id dials. Since every
// [erdos.Pipe] is a duplex framed pipe, one connection per (lane, peer
// pair) is sufficient — there is no separate accept-only/dial-only
// distinction visible to the node core.
type Transport struct {
	controlAddrs []string
	dataAddrs    []string
	cfg          *Config

	mu        sync.Mutex
	listeners []net.Listener
}

// New constructs a [*Transport] over the given per-node control and data
// addresses. len(controlAddrs) and len(dataAddrs) must both equal the
// run's node count; index i is node i's bind address for that lane.
func New(controlAddrs, dataAddrs []string, cfg *Config) *Transport {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Transport{controlAddrs: controlAddrs, dataAddrs: dataAddrs, cfg: cfg}
}

// Connect implements [erdos.Transport]. It blocks until every control and
// data pipe to every peer in peers is established.
func (t *Transport) Connect(ctx context.Context, self erdos.NodeID, peers []erdos.NodeID) (control, data []erdos.Pipe, err error) {
	var g errgroup.Group
	g.Go(func() error {
		var err error
		control, err = t.connectLane(ctx, erdos.LaneControl, self, peers, t.controlAddrs)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = t.connectLane(ctx, erdos.LaneData, self, peers, t.dataAddrs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return control, data, nil
}

// connectLane establishes one [erdos.Pipe] per peer for one lane: a
// listener on self's address accepts connections from every peer with a
// smaller id; a dial is made to every peer with a larger id. Both sides
// exchange a 4-byte NodeID handshake first so the accepting side learns
// which peer connected.
func (t *Transport) connectLane(ctx context.Context, lane erdos.Lane, self erdos.NodeID, peers []erdos.NodeID, addrs []string) ([]erdos.Pipe, error) {
	var toAccept, toDial []erdos.NodeID
	for _, p := range peers {
		if p < self {
			toAccept = append(toAccept, p)
		} else {
			toDial = append(toDial, p)
		}
	}

	var listener net.Listener
	if len(toAccept) > 0 {
		l, err := t.cfg.Listen.Listen(ctx, "tcp", addrs[self])
		if err != nil {
			return nil, erdos.NewError(erdos.KindTransportIO, fmt.Errorf("tcptransport: listen %s: %w", addrs[self], err))
		}
		listener = l
		t.mu.Lock()
		t.listeners = append(t.listeners, l)
		t.mu.Unlock()
	}

	pipes := make([]erdos.Pipe, 0, len(peers))
	var mu sync.Mutex
	var g errgroup.Group

	if listener != nil {
		g.Go(func() error {
			return t.accept(ctx, lane, self, listener, len(toAccept), func(p erdos.Pipe) {
				mu.Lock()
				pipes = append(pipes, p)
				mu.Unlock()
			})
		})
	}
	for _, peer := range toDial {
		g.Go(func() error {
			p, err := t.dial(ctx, lane, self, peer, addrs[peer])
			if err != nil {
				return err
			}
			mu.Lock()
			pipes = append(pipes, p)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pipes, nil
}

// accept loops until want peers have connected on listener, identifying
// each by its handshake id and invoking add with the resulting pipe.
func (t *Transport) accept(ctx context.Context, lane erdos.Lane, self erdos.NodeID, listener net.Listener, want int, add func(erdos.Pipe)) error {
	if want == 0 {
		return nil
	}
	defer listener.Close()

	var g errgroup.Group
	for range want {
		conn, err := listener.Accept()
		if err != nil {
			return erdos.NewError(erdos.KindTransportIO, fmt.Errorf("tcptransport: accept: %w", err))
		}
		g.Go(func() error {
			peer, wrapped, err := t.serverHandshake(ctx, lane, self, conn)
			if err != nil {
				return err
			}
			gp := newGobPipe(wrapped, peer, lane, t.cfg.ErrClassifier)
			add(erdos.Pipe{Peer: peer, Sink: gp, Src: gp})
			return nil
		})
	}
	return g.Wait()
}

// dial runs this peer's dial pipeline (dial -> handshake -> optional TLS
// -> observe, see pipeline.go) and wraps the result as a duplex pipe.
func (t *Transport) dial(ctx context.Context, lane erdos.Lane, self, peer erdos.NodeID, addr string) (erdos.Pipe, error) {
	wrapped, err := t.dialPipeline(self, peer, lane).Call(ctx, addr)
	if err != nil {
		return erdos.Pipe{}, err
	}
	gp := newGobPipe(wrapped, peer, lane, t.cfg.ErrClassifier)
	return erdos.Pipe{Peer: peer, Sink: gp, Src: gp}, nil
}

func (t *Transport) serverHandshake(ctx context.Context, lane erdos.Lane, self erdos.NodeID, conn net.Conn) (erdos.NodeID, net.Conn, error) {
	var gotPeer int32
	if err := binary.Read(conn, binary.BigEndian, &gotPeer); err != nil {
		conn.Close()
		return 0, nil, erdos.NewError(erdos.KindTransportIO, err)
	}
	peer := erdos.NodeID(gotPeer)
	if err := binary.Write(conn, binary.BigEndian, int32(self)); err != nil {
		conn.Close()
		return 0, nil, erdos.NewPeerError(erdos.KindTransportIO, peer, err)
	}
	wrapped := conn
	if t.cfg.TLSConfig != nil {
		tconn := tls.Server(conn, t.cfg.TLSConfig)
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return 0, nil, erdos.NewPeerError(erdos.KindTransportIO, peer, err)
		}
		wrapped = tconn
	}
	wrapped = observeAndWatch(ctx, wrapped, lane, peer, t.cfg.Logger, t.cfg.ErrClassifier, t.cfg.TimeNow)
	return peer, wrapped, nil
}

// Close implements [erdos.Transport]: it closes every listener opened by
// Connect. It does not close individual pipes; each pipe's connection is
// closed when the ctx passed to Connect is done (see observeAndWatch) or
// when the pipe's own Close is called.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, l := range t.listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.listeners = nil
	return firstErr
}
