// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way. For example, dialing a peer's control lane, or running a single
// operator task from start to completion.
//
// We recommend using a span ID to correlate the Start/Done log pair for
// a span across the structured log stream.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
