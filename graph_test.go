// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleGraph() *Graph {
	return &Graph{
		Operators: []OperatorInfo{
			{ID: 0, Node: 0, Name: "source"},
			{ID: 1, Node: 1, Name: "sink"},
		},
		Edges: []Edge{
			{Stream: 0, Producer: 0, Consumer: 1},
		},
	}
}

func TestGraphValidate(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Validate(2))

	t.Run("node out of range", func(t *testing.T) {
		bad := simpleGraph()
		bad.Operators[0].Node = 5
		assert.Error(t, bad.Validate(2))
	})

	t.Run("duplicate operator id", func(t *testing.T) {
		bad := simpleGraph()
		bad.Operators[1].ID = 0
		assert.Error(t, bad.Validate(2))
	})

	t.Run("edge references unknown operator", func(t *testing.T) {
		bad := simpleGraph()
		bad.Edges[0].Consumer = 99
		assert.Error(t, bad.Validate(2))
	})

	t.Run("inconsistent producer for a stream", func(t *testing.T) {
		bad := simpleGraph()
		bad.Edges = append(bad.Edges, Edge{Stream: 0, Producer: 1, Consumer: 0})
		assert.Error(t, bad.Validate(2))
	})

	t.Run("duplicate edge to the same consumer", func(t *testing.T) {
		bad := simpleGraph()
		bad.Edges = append(bad.Edges, Edge{Stream: 0, Producer: 0, Consumer: 1})
		assert.Error(t, bad.Validate(2))
	})

	t.Run("fan-out to several consumers on the same stream is valid", func(t *testing.T) {
		g := simpleGraph()
		g.Operators = append(g.Operators, OperatorInfo{ID: 2, Node: 1, Name: "sink2"})
		g.Edges = append(g.Edges, Edge{Stream: 0, Producer: 0, Consumer: 2})
		assert.NoError(t, g.Validate(2))
	})

	t.Run("declared output port must include the stream", func(t *testing.T) {
		bad := simpleGraph()
		bad.Operators[0].Outputs = []StreamID{7}
		assert.Error(t, bad.Validate(2))
	})

	t.Run("declared input port must include the stream", func(t *testing.T) {
		bad := simpleGraph()
		bad.Operators[1].Inputs = []StreamID{7}
		assert.Error(t, bad.Validate(2))
	})

	t.Run("matching declared ports are accepted", func(t *testing.T) {
		g := simpleGraph()
		g.Operators[0].Outputs = []StreamID{0}
		g.Operators[1].Inputs = []StreamID{0}
		assert.NoError(t, g.Validate(2))
	})
}

func TestSchedule(t *testing.T) {
	sg, err := Schedule(simpleGraph(), 2)
	require.NoError(t, err)

	local0 := sg.LocalOperators(0)
	require.Len(t, local0, 1)
	assert.Equal(t, OperatorID(0), local0[0].ID)

	op, ok := sg.Operator(1)
	require.True(t, ok)
	assert.Equal(t, "sink", op.Name)

	edges, ok := sg.Edges(0)
	require.True(t, ok)
	require.Len(t, edges, 1)
	assert.Equal(t, OperatorID(0), edges[0].Producer)

	_, ok = sg.Operator(99)
	assert.False(t, ok)
}

func TestScheduleFanOutEdges(t *testing.T) {
	g := simpleGraph()
	g.Operators = append(g.Operators, OperatorInfo{ID: 2, Node: 1, Name: "sink2"})
	g.Edges = append(g.Edges, Edge{Stream: 0, Producer: 0, Consumer: 2})

	sg, err := Schedule(g, 2)
	require.NoError(t, err)

	edges, ok := sg.Edges(0)
	require.True(t, ok)
	require.Len(t, edges, 2)
	assert.Equal(t, OperatorID(1), edges[0].Consumer)
	assert.Equal(t, OperatorID(2), edges[1].Consumer)

	_, ok = sg.Edges(99)
	assert.False(t, ok)
}

func TestScheduleInvalidGraph(t *testing.T) {
	bad := simpleGraph()
	bad.Operators[0].Node = 5
	_, err := Schedule(bad, 2)
	assert.Error(t, err)
}

func TestScheduledGraphWriteDOT(t *testing.T) {
	sg, err := Schedule(simpleGraph(), 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.dot")
	require.NoError(t, sg.WriteDOT(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)
	assert.Contains(t, contents, "digraph erdos")
	assert.Contains(t, contents, "op0")
	assert.Contains(t, contents, "op1")
}
