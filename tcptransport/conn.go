//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: bassosimone/nop observeconn.go and cancelwatch.go
//

package tcptransport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/gabrik/erdos"
)

// observeAndWatch wraps conn so that (a) every Read/Write is logged
// with the peer's errClass the way [erdos.SLogger]-based components log
// elsewhere in this module, and (b) the connection is closed automatically
// when ctx is cancelled, so a shutdown request unblocks any goroutine
// blocked in Recv/Send without a separate timeout mechanism. Grounded on
// the teacher's ObserveConnFunc and CancelWatchFunc, fused into a single
// wrap since both always apply together here.
func observeAndWatch(ctx context.Context, conn net.Conn, lane erdos.Lane, peer erdos.NodeID, logger erdos.SLogger, cls erdos.ErrClassifier, timeNow func() time.Time) net.Conn {
	oc := &observedConn{
		Conn:     conn,
		lane:     lane,
		peer:     peer,
		laddr:    safeconn.LocalAddr(conn),
		raddr:    safeconn.RemoteAddr(conn),
		protocol: safeconn.Network(conn),
		logger:   logger,
		cls:      cls,
		timeNow:  timeNow,
	}
	stop := context.AfterFunc(ctx, func() {
		oc.Close()
	})
	oc.stop = stop
	return oc
}

// observedConn logs I/O events on a [net.Conn] and binds its lifetime to
// the context passed to observeAndWatch.
type observedConn struct {
	net.Conn
	lane     erdos.Lane
	peer     erdos.NodeID
	laddr    string
	raddr    string
	protocol string
	logger   erdos.SLogger
	cls      erdos.ErrClassifier
	timeNow  func() time.Time

	stop      func() bool
	closeOnce sync.Once
}

// Read implements [net.Conn].
func (c *observedConn) Read(b []byte) (int, error) {
	t0 := c.timeNow()
	n, err := c.Conn.Read(b)
	c.logIO("connRead", t0, n, err)
	return n, err
}

// Write implements [net.Conn].
func (c *observedConn) Write(b []byte) (int, error) {
	t0 := c.timeNow()
	n, err := c.Conn.Write(b)
	c.logIO("connWrite", t0, n, err)
	return n, err
}

// Close implements [net.Conn]. Safe to call more than once; only the
// first call unregisters the context watcher and closes the underlying
// connection.
func (c *observedConn) Close() (err error) {
	c.closeOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		err = c.Conn.Close()
	})
	return err
}

func (c *observedConn) logIO(event string, t0 time.Time, n int, err error) {
	c.logger.Debug(
		event,
		slog.String("lane", c.lane.String()),
		slog.Int("peer", int(c.peer)),
		slog.String("localAddr", c.laddr),
		slog.String("remoteAddr", c.raddr),
		slog.String("protocol", c.protocol),
		slog.Int("n", n),
		slog.Any("err", err),
		slog.String("errClass", c.cls.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
}
