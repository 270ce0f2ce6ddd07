// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import "sync"

// NodeHandle is the external control surface for a node started with
// [Node.RunAsync], bound to the goroutine that runs it.
type NodeHandle struct {
	node   *Node
	runErr chan error

	once   sync.Once
	result error
}

// Join waits for the node's goroutine to exit and surfaces any error it
// returned. Safe to call more than once or concurrently with [Shutdown];
// every caller observes the same result.
func (h *NodeHandle) Join() error {
	h.once.Do(func() {
		h.result = <-h.runErr
	})
	return h.result
}

// Shutdown attempts a non-blocking send on the shutdown signal (capacity
// 1, so a duplicate shutdown is silently dropped), then joins the node's
// goroutine. Calling Shutdown more than once is a no-op beyond the first.
func (h *NodeHandle) Shutdown() error {
	select {
	case h.node.shutdown <- struct{}{}:
	default:
	}
	return h.Join()
}
