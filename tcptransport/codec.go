// SPDX-License-Identifier: GPL-3.0-or-later

package tcptransport

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gabrik/erdos"
)

// gobPipe frames [erdos.Frame] values over a single [net.Conn] using
// encoding/gob, which is self-delimiting and needs no separate
// length-prefix bookkeeping — the same choice spec.md's collaborator
// boundary (§1, "bit-exact framing is a collaborator concern") leaves
// open and this transport resolves concretely (see DESIGN.md for why no
// corpus codec library fit a generic byte-frame better than gob). Both
// [erdos.FramedSink] and [erdos.FramedSource] for one pipe share the
// underlying conn but use independent gob streams in each direction, so
// a single gobPipe backs both halves of [erdos.Pipe].
type gobPipe struct {
	conn net.Conn
	peer erdos.NodeID
	lane erdos.Lane
	cls  erdos.ErrClassifier

	encMu sync.Mutex
	enc   *gob.Encoder
	dec   *gob.Decoder

	closeOnce sync.Once
}

func newGobPipe(conn net.Conn, peer erdos.NodeID, lane erdos.Lane, cls erdos.ErrClassifier) *gobPipe {
	return &gobPipe{
		conn: conn,
		peer: peer,
		lane: lane,
		cls:  cls,
		enc:  gob.NewEncoder(conn),
		dec:  gob.NewDecoder(conn),
	}
}

// Send implements [erdos.FramedSink]. gob.Encoder has no notion of ctx;
// cancellation is delivered by observeAndWatch closing the underlying
// conn, which unblocks the in-flight Write with a use-of-closed-network
// error.
func (p *gobPipe) Send(ctx context.Context, frame erdos.Frame) error {
	p.encMu.Lock()
	defer p.encMu.Unlock()
	if err := p.enc.Encode(&frame); err != nil {
		return classifyIOErr(err, p.peer, p.cls)
	}
	return nil
}

// Recv implements [erdos.FramedSource].
func (p *gobPipe) Recv(ctx context.Context) (erdos.Frame, error) {
	var frame erdos.Frame
	if err := p.dec.Decode(&frame); err != nil {
		return erdos.Frame{}, classifyIOErr(err, p.peer, p.cls)
	}
	return frame, nil
}

// Close implements both [erdos.FramedSink] and [erdos.FramedSource];
// calling it from either side closes the shared conn exactly once.
func (p *gobPipe) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.conn.Close() })
	return err
}

// classifyIOErr wraps a gob/net error as a peer-tagged [*erdos.Error],
// distinguishing a clean close (EOF family) from a genuine I/O failure.
func classifyIOErr(err error, peer erdos.NodeID, cls erdos.ErrClassifier) error {
	if isEOF(err) {
		return erdos.NewPeerError(erdos.KindDisconnected, peer, err)
	}
	return erdos.NewPeerError(erdos.KindTransportIO, peer, err)
}

// isEOF reports whether err signals a clean pipe closure rather than a
// genuine transport failure: io.EOF, io.ErrUnexpectedEOF, net.ErrClosed,
// or gob's own "EOF"-wrapped variants (gob.Decode does not always return
// io.EOF verbatim when the peer closes mid-stream).
func isEOF(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "EOF")
}
