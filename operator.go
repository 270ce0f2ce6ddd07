// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import "context"

// OperatorID identifies one operator instance within a [Graph], unique
// across the whole run (not just within a node).
type OperatorID int

// StreamID identifies one dataflow edge within a [Graph], unique across
// the whole run.
type StreamID int

// OperatorExecutor is the interface a runner-factory produces. The node
// core only starts and stops executors and relays a small set of control
// messages; windowing, timestamps, and watermarks are a collaborator
// concern entirely internal to the executor.
type OperatorExecutor interface {
	// Initialize runs any setup the operator needs before it is
	// reachable by peers' data or control messages. Returning an error
	// aborts startup for this node.
	Initialize(ctx context.Context) error

	// Run executes the operator's steady-state loop. It returns when
	// ctx is cancelled (shutdown) or the operator completes on its own;
	// a non-nil error is treated as an operator failure that triggers
	// supervised shutdown.
	Run(ctx context.Context) error
}

// RunnerFactory constructs the [OperatorExecutor] for one operator,
// given the [ChannelManager] it should use to obtain its stream
// endpoints. Invoked once per local operator during Phase D.
type RunnerFactory func(mgr *ChannelManager) (OperatorExecutor, error)
