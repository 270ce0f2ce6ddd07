//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: bassosimone/nop's Func[A,B]/Compose2 pipeline idiom
// (erdos.Func, erdos.Compose2), applied to the connection-setup sequence
// connect.go composes there (dial -> observe) plus this package's own
// handshake and optional TLS stages.
//

package tcptransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gabrik/erdos"
)

// dialFunc dials addr using cfg.Dialer, logging the attempt the way the
// teacher's ConnectFunc does.
type dialFunc struct {
	dialer  Dialer
	peer    erdos.NodeID
	lane    erdos.Lane
	logger  erdos.SLogger
	cls     erdos.ErrClassifier
	timeNow func() time.Time
}

var _ erdos.Func[string, net.Conn] = &dialFunc{}

func (f *dialFunc) Call(ctx context.Context, addr string) (net.Conn, error) {
	t0 := f.timeNow()
	f.logger.Info("tcpDialStart", slog.String("lane", f.lane.String()), slog.Int("peer", int(f.peer)), slog.String("addr", addr), slog.Time("t", t0))
	conn, err := f.dialer.DialContext(ctx, "tcp", addr)
	f.logger.Info("tcpDialDone", slog.String("lane", f.lane.String()), slog.Int("peer", int(f.peer)), slog.Any("err", err), slog.String("errClass", f.cls.Classify(err)), slog.Time("t0", t0), slog.Time("t", f.timeNow()))
	if err != nil {
		return nil, erdos.NewPeerError(erdos.KindTransportIO, f.peer, fmt.Errorf("tcptransport: dial %s: %w", addr, err))
	}
	return conn, nil
}

// clientHandshakeFunc writes self's id then reads and validates the
// peer's id on a freshly-dialed conn, closing it on any failure per
// [erdos.Func]'s resource-cleanup contract.
type clientHandshakeFunc struct {
	self, peer erdos.NodeID
}

var _ erdos.Func[net.Conn, net.Conn] = &clientHandshakeFunc{}

func (f *clientHandshakeFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	if err := binary.Write(conn, binary.BigEndian, int32(f.self)); err != nil {
		conn.Close()
		return nil, erdos.NewPeerError(erdos.KindTransportIO, f.peer, err)
	}
	var gotPeer int32
	if err := binary.Read(conn, binary.BigEndian, &gotPeer); err != nil {
		conn.Close()
		return nil, erdos.NewPeerError(erdos.KindTransportIO, f.peer, err)
	}
	if erdos.NodeID(gotPeer) != f.peer {
		conn.Close()
		return nil, erdos.NewPeerError(erdos.KindProtocolViolation, f.peer,
			fmt.Errorf("tcptransport: expected peer %d, handshake reported %d", f.peer, gotPeer))
	}
	return conn, nil
}

// tlsClientFunc performs a client TLS handshake when cfg is non-nil, and
// is the identity otherwise.
type tlsClientFunc struct {
	cfg  *tls.Config
	peer erdos.NodeID
}

var _ erdos.Func[net.Conn, net.Conn] = &tlsClientFunc{}

func (f *tlsClientFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	if f.cfg == nil {
		return conn, nil
	}
	tconn := tls.Client(conn, f.cfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, erdos.NewPeerError(erdos.KindTransportIO, f.peer, err)
	}
	return tconn, nil
}

// observeFunc is the final pipeline stage: wrap conn for I/O logging and
// bind its lifetime to ctx.
type observeFunc struct {
	lane    erdos.Lane
	peer    erdos.NodeID
	logger  erdos.SLogger
	cls     erdos.ErrClassifier
	timeNow func() time.Time
}

var _ erdos.Func[net.Conn, net.Conn] = &observeFunc{}

func (f *observeFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	return observeAndWatch(ctx, conn, f.lane, f.peer, f.logger, f.cls, f.timeNow), nil
}

// dialPipeline composes dial -> client handshake -> optional TLS ->
// observe into the single [erdos.Func] the dialing side of connectLane
// invokes per peer.
func (t *Transport) dialPipeline(self, peer erdos.NodeID, lane erdos.Lane) erdos.Func[string, net.Conn] {
	df := &dialFunc{dialer: t.cfg.Dialer, peer: peer, lane: lane, logger: t.cfg.Logger, cls: t.cfg.ErrClassifier, timeNow: t.cfg.TimeNow}
	hs := &clientHandshakeFunc{self: self, peer: peer}
	tl := &tlsClientFunc{cfg: t.cfg.TLSConfig, peer: peer}
	ob := &observeFunc{lane: lane, peer: peer, logger: t.cfg.Logger, cls: t.cfg.ErrClassifier, timeNow: t.cfg.TimeNow}
	return erdos.Compose2(df, erdos.Compose3(hs, tl, ob))
}
