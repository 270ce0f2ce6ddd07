// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"fmt"

	"github.com/gabrik/erdos/errclass"
)

// ErrorKind groups the failures a [Node] can produce into the small set of
// categories the nine-phase startup sequence and the steady-state senders
// and receivers need to distinguish.
type ErrorKind int

const (
	// KindCapacity marks a transient failure to enqueue because a bounded
	// channel or buffer is full. Callers may retry.
	KindCapacity ErrorKind = iota

	// KindDisconnected marks a terminal failure: the peer, or the local
	// endpoint registry, is gone and the operation can never succeed.
	KindDisconnected

	// KindSerialization marks a terminal failure to encode or decode a
	// message on the wire.
	KindSerialization

	// KindTransportIO marks a terminal failure in the underlying
	// transport (dial, accept, read, write, close).
	KindTransportIO

	// KindProtocolViolation marks a terminal failure because a peer sent
	// a [ControlMessage] out of the order the startup phases require.
	// Protocol violations abort startup.
	KindProtocolViolation
)

// String renders k using the names above, for use in log fields.
func (k ErrorKind) String() string {
	switch k {
	case KindCapacity:
		return "capacity"
	case KindDisconnected:
		return "disconnected"
	case KindSerialization:
		return "serialization"
	case KindTransportIO:
		return "transport_io"
	case KindProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the [ErrorKind] that governs how
// callers should react to it, and, when known, the peer [NodeID] involved.
type Error struct {
	Kind ErrorKind
	Peer NodeID
	// HasPeer reports whether Peer is meaningful. Some errors (e.g. a
	// local buffer overrun) have no associated peer.
	HasPeer bool
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.HasPeer {
		return fmt.Sprintf("erdos: %s (peer %d): %v", e.Kind, e.Peer, e.Err)
	}
	return fmt.Sprintf("erdos: %s: %v", e.Kind, e.Err)
}

// Unwrap allows [errors.Is] and [errors.As] to see through e.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind and no associated peer.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewPeerError wraps err with kind and the given peer.
func NewPeerError(kind ErrorKind, peer NodeID, err error) *Error {
	return &Error{Kind: kind, Peer: peer, HasPeer: true, Err: err}
}

// ErrClassifier classifies errors into categorical strings for structured
// logging and metrics.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that make it possible to aggregate failures across a run
// without parsing free-form error text.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	cfg.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New], mapping
// platform errnos and well-known stdlib sentinels to stable tags.
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)

// errUnknownStream builds the error a data receiver reports when a frame
// names a stream id the channel manager has never registered, once the
// manager is known to be fully populated.
func errUnknownStream(stream StreamID) error {
	return fmt.Errorf("erdos: frame for unregistered stream %d", stream)
}
