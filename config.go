// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"fmt"
	"runtime"
	"time"
)

// NodeID is a dense node index in [0, N) identifying one runtime instance
// among the fixed set of cooperating nodes for a run.
type NodeID int

// Configuration holds the immutable startup parameters of one node. Every
// node in a run uses the same address lists; each node reads its own
// [Configuration.Index] to determine which address to bind and which peers
// to dial.
//
// Pass a [*Configuration] to [NewNode]. All fields are safe to modify after
// [NewConfiguration] returns but before the configuration is handed to
// [NewNode].
type Configuration struct {
	// Index is this node's NodeID.
	Index NodeID

	// NumNodes is the total number of cooperating nodes, N.
	NumNodes int

	// ControlAddresses has one address per node for the control lane.
	//
	// len(ControlAddresses) must equal NumNodes.
	ControlAddresses []string

	// DataAddresses has one address per node for the data lane.
	//
	// len(DataAddresses) must equal NumNodes.
	DataAddresses []string

	// NumWorkerThreads holds a worker-thread count for this node. No code
	// in this module reads it: every task runs on the Go
	// runtime's scheduler, which this package does not configure.
	//
	// Set by [NewConfiguration] to [runtime.NumCPU].
	NumWorkerThreads int

	// GraphFilename, if non-empty, causes the scheduled graph to be
	// dumped as a DOT file at this path during Phase C.
	GraphFilename string

	// Logger is the structured-logging sink for this node.
	//
	// Set by [NewConfiguration] to [DefaultSLogger].
	Logger SLogger

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfiguration] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time (configurable for testing).
	//
	// Set by [NewConfiguration] to [time.Now].
	TimeNow func() time.Time
}

// NewConfiguration creates a [*Configuration] with sensible defaults for the
// given node index, node count, and per-lane address lists.
func NewConfiguration(index NodeID, numNodes int, controlAddresses, dataAddresses []string) *Configuration {
	return &Configuration{
		Index:            index,
		NumNodes:         numNodes,
		ControlAddresses: controlAddresses,
		DataAddresses:    dataAddresses,
		NumWorkerThreads: runtime.NumCPU(),
		Logger:           DefaultSLogger(),
		ErrClassifier:    DefaultErrClassifier,
		TimeNow:          time.Now,
	}
}

// Validate checks the invariants spec §3 assigns to [Configuration]: the
// node index is in range, and both per-lane address lists are non-empty
// and have exactly one entry per node.
func (c *Configuration) Validate() error {
	if c.NumNodes <= 0 {
		return fmt.Errorf("erdos: NumNodes must be positive, got %d", c.NumNodes)
	}
	if c.Index < 0 || int(c.Index) >= c.NumNodes {
		return fmt.Errorf("erdos: Index %d out of range [0, %d)", c.Index, c.NumNodes)
	}
	if len(c.ControlAddresses) != c.NumNodes {
		return fmt.Errorf("erdos: ControlAddresses has %d entries, want %d", len(c.ControlAddresses), c.NumNodes)
	}
	if len(c.DataAddresses) != c.NumNodes {
		return fmt.Errorf("erdos: DataAddresses has %d entries, want %d", len(c.DataAddresses), c.NumNodes)
	}
	return nil
}
