// SPDX-License-Identifier: GPL-3.0-or-later

// Package erdos is the per-node runtime of a distributed stream-processing
// framework.
//
// # Core Abstraction
//
// A computation is expressed as a [Graph] of operators that exchange typed
// messages over streams. The graph is partitioned across a fixed set of
// cooperating nodes; each process runs exactly one [Node], responsible for:
//
//   - establishing peer-to-peer connectivity with every other node over a
//     two-lane fabric (control and data), abstracted by [Transport];
//   - exchanging a uniform initialization handshake so that no operator
//     observes traffic from a peer that has not finished setting up;
//   - scheduling and running the operators assigned to it;
//   - multiplexing operator stream traffic over the inter-node links via a
//     [ChannelManager];
//   - driving the whole system through a coordinated startup/shutdown
//     lifecycle.
//
// # Lifecycle
//
// [NewNode] builds a [Node] from a [Configuration], a [Graph], and a
// [Transport]. [Node.Run] blocks the calling goroutine for the node's entire
// lifetime. [Node.RunAsync] starts the node on its own goroutine and returns
// a [NodeHandle] only once the node has passed every startup barrier
// (spec phase H); from the caller's perspective startup is synchronous.
//
// Startup proceeds through nine ordered phases (A-I): transport bring-up,
// communication handshake, local scheduling, operator spawn, local barrier,
// driver setup, global barrier, driver release, and run. See [Node.Run] for
// the phase-by-phase narrative.
//
// # Observability
//
// Every component that performs I/O or crosses a barrier accepts an
// [SLogger] (compatible with [log/slog]); the default is a no-op logger.
// Errors are classified for structured logging via [ErrClassifier]; the
// default classifier maps platform syscall errors, context deadlines, and
// network timeouts to errno-style tags via the erdos/errclass subpackage.
// It has no tags for the five kinds in [ErrorKind]: an [*Error] that wraps
// none of those conditions is classified as EGENERIC.
//
// Use [NewSpanID] to mint a unique, time-ordered identifier (UUIDv7) for
// correlating log lines across a barrier phase or a sender/receiver
// worker's lifetime.
//
// # Transports
//
// [Transport] is supplied by the caller; this package treats point-to-point
// (erdos/tcptransport) and discovery-based (erdos/rendezvoustransport)
// families uniformly. Both concrete transports live in subpackages so that
// [Node] depends only on the [Transport] interface.
package erdos
