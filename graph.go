// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"fmt"
	"os"
	"strings"
)

// DriverSetupFunc is a user-code hook that bootstraps external input into
// the dataflow by publishing onto the streams it owns, once Phase F
// places it under the node's [ChannelManager].
type DriverSetupFunc func(mgr *ChannelManager) error

// OperatorInfo describes one operator instance as declared by the caller
// before [NewNode].
type OperatorInfo struct {
	ID      OperatorID
	Node    NodeID
	Name    string
	Runner  RunnerFactory
	Driver  []DriverSetupFunc
	Inputs  []StreamID
	Outputs []StreamID
}

// Edge declares one dataflow edge between a producing operator's output
// port and a consuming operator's input port. A stream has exactly one
// producer but may have more than one consumer: declare one [Edge] per
// consumer, all sharing the same Stream and Producer, to fan a stream out
// to several operators (possibly on several nodes), matching the
// glossary's "one or more operator inputs" and §4.3's "one or more write
// sides".
type Edge struct {
	Stream   StreamID
	Producer OperatorID
	Consumer OperatorID
}

// Graph is the caller-supplied operator list and edge set, provided
// before [Node.Run] or [Node.RunAsync].
type Graph struct {
	Operators []OperatorInfo
	Edges     []Edge
}

// Validate checks the invariants this runtime assigns to a [Graph]: every
// operator's node is in range, every edge endpoint names a declared
// operator, no operator id repeats, every stream has a single producer
// across all of its edges, no consumer is wired to the same stream twice,
// and — when an operator declares its [OperatorInfo.Inputs]/
// [OperatorInfo.Outputs] ports — every edge touching it names a declared
// port, matching the data model's "every edge endpoint is a declared
// operator port". Operators that leave Inputs/Outputs empty are
// unconstrained, so existing graphs that never declare ports keep working.
func (g *Graph) Validate(numNodes int) error {
	seenOps := make(map[OperatorID]struct{}, len(g.Operators))
	for _, op := range g.Operators {
		if op.Node < 0 || int(op.Node) >= numNodes {
			return fmt.Errorf("erdos: operator %d has out-of-range node %d", op.ID, op.Node)
		}
		if _, dup := seenOps[op.ID]; dup {
			return fmt.Errorf("erdos: duplicate operator id %d", op.ID)
		}
		seenOps[op.ID] = struct{}{}
	}
	producerByStream := make(map[StreamID]OperatorID, len(g.Edges))
	consumersByStream := make(map[StreamID]map[OperatorID]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := seenOps[e.Producer]; !ok {
			return fmt.Errorf("erdos: edge %d references unknown producer operator %d", e.Stream, e.Producer)
		}
		if _, ok := seenOps[e.Consumer]; !ok {
			return fmt.Errorf("erdos: edge %d references unknown consumer operator %d", e.Stream, e.Consumer)
		}
		if p, ok := producerByStream[e.Stream]; ok {
			if p != e.Producer {
				return fmt.Errorf("erdos: stream %d has inconsistent producers %d and %d", e.Stream, p, e.Producer)
			}
		} else {
			producerByStream[e.Stream] = e.Producer
		}
		if consumersByStream[e.Stream] == nil {
			consumersByStream[e.Stream] = make(map[OperatorID]struct{})
		}
		if _, dup := consumersByStream[e.Stream][e.Consumer]; dup {
			return fmt.Errorf("erdos: duplicate edge for stream %d to consumer %d", e.Stream, e.Consumer)
		}
		consumersByStream[e.Stream][e.Consumer] = struct{}{}

		if prod := g.operatorByID(e.Producer); prod != nil && len(prod.Outputs) > 0 && !containsStream(prod.Outputs, e.Stream) {
			return fmt.Errorf("erdos: operator %d has no declared output port for stream %d", e.Producer, e.Stream)
		}
		if cons := g.operatorByID(e.Consumer); cons != nil && len(cons.Inputs) > 0 && !containsStream(cons.Inputs, e.Stream) {
			return fmt.Errorf("erdos: operator %d has no declared input port for stream %d", e.Consumer, e.Stream)
		}
	}
	return nil
}

func (g *Graph) operatorByID(id OperatorID) *OperatorInfo {
	for i := range g.Operators {
		if g.Operators[i].ID == id {
			return &g.Operators[i]
		}
	}
	return nil
}

func containsStream(ports []StreamID, stream StreamID) bool {
	for _, p := range ports {
		if p == stream {
			return true
		}
	}
	return false
}

// ScheduledGraph is a [Graph] after the scheduling pass: the same shape,
// finalized and ready to drive [ChannelManager] construction.
type ScheduledGraph struct {
	Graph *Graph

	// operatorsByID and edgesByStream are built once by Schedule for
	// O(1) lookups during Phase C and D. edgesByStream holds every edge
	// declared for a stream — one per consumer — so a fanned-out stream
	// resolves to all of its consumers.
	operatorsByID map[OperatorID]*OperatorInfo
	edgesByStream map[StreamID][]*Edge
}

// Schedule runs the (deterministic, identity) scheduling pass over g and
// returns the resulting [*ScheduledGraph]. Placement is decided entirely
// by each [OperatorInfo.Node] set by the caller; this pass only indexes
// the graph and validates it, matching the original system's assignment
// step, which here has no remaining freedom to exercise because operator
// placement is a caller input rather than computed.
func Schedule(g *Graph, numNodes int) (*ScheduledGraph, error) {
	if err := g.Validate(numNodes); err != nil {
		return nil, err
	}
	sg := &ScheduledGraph{
		Graph:         g,
		operatorsByID: make(map[OperatorID]*OperatorInfo, len(g.Operators)),
		edgesByStream: make(map[StreamID][]*Edge, len(g.Edges)),
	}
	for i := range g.Operators {
		op := &g.Operators[i]
		sg.operatorsByID[op.ID] = op
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		sg.edgesByStream[e.Stream] = append(sg.edgesByStream[e.Stream], e)
	}
	return sg, nil
}

// LocalOperators returns the operators scheduled onto self, in input
// order, for use by Phase D.
func (sg *ScheduledGraph) LocalOperators(self NodeID) []*OperatorInfo {
	var out []*OperatorInfo
	for i := range sg.Graph.Operators {
		op := &sg.Graph.Operators[i]
		if op.Node == self {
			out = append(out, op)
		}
	}
	return out
}

// Operator looks up an operator by id.
func (sg *ScheduledGraph) Operator(id OperatorID) (*OperatorInfo, bool) {
	op, ok := sg.operatorsByID[id]
	return op, ok
}

// Edges looks up every edge declared for stream — one per consumer, all
// sharing the same producer (see [Edge]).
func (sg *ScheduledGraph) Edges(stream StreamID) ([]*Edge, bool) {
	e, ok := sg.edgesByStream[stream]
	return e, ok
}

// WriteDOT renders sg as a Graphviz DOT digraph and writes it to filename,
// one node per operator and one edge per declared [Edge], so a fanned-out
// stream appears once per consumer. Called from Phase C when
// [Configuration.GraphFilename] is non-empty.
func (sg *ScheduledGraph) WriteDOT(filename string) error {
	var b strings.Builder
	b.WriteString("digraph erdos {\n")
	for _, op := range sg.Graph.Operators {
		label := op.Name
		if label == "" {
			label = fmt.Sprintf("op%d", op.ID)
		}
		fmt.Fprintf(&b, "  op%d [label=%q, node=%d];\n", op.ID, label, op.Node)
	}
	for _, e := range sg.Graph.Edges {
		fmt.Fprintf(&b, "  op%d -> op%d [label=%q];\n", e.Producer, e.Consumer, fmt.Sprintf("stream%d", e.Stream))
	}
	b.WriteString("}\n")
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}
