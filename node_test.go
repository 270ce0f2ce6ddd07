// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// errCanceled stands in for the local-queue-closed signal a real shutdown
// path doesn't actually need to distinguish from any other reason Recv
// stopped yielding values; these tests never reach it in practice.
var errCanceled = errors.New("erdos: queue closed")

func encodeInt(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}

// recorder collects payloads received by a test operator under a mutex,
// since multiple nodes' operators run on independent goroutines.
type recorder struct {
	mu   sync.Mutex
	vals []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.vals))
	copy(out, r.vals)
	return out
}

// funcExecutor adapts plain init/run closures to [OperatorExecutor], the
// way the teacher's *stub types adapt closures to its Func interfaces.
type funcExecutor struct {
	initFn func(ctx context.Context) error
	runFn  func(ctx context.Context) error
}

func (e *funcExecutor) Initialize(ctx context.Context) error {
	if e.initFn != nil {
		return e.initFn(ctx)
	}
	return nil
}

func (e *funcExecutor) Run(ctx context.Context) error {
	if e.runFn != nil {
		return e.runFn(ctx)
	}
	return nil
}

// runAllAsync starts RunAsync on every node concurrently and waits for all
// of them to either reach Phase H or fail. Nodes must be started
// concurrently rather than one after another: each node's Phase A blocks
// until every peer's transport has also arrived, so starting them
// sequentially would deadlock node 0 waiting on a node 1 that hasn't
// been asked to start yet.
func runAllAsync(t *testing.T, ctx context.Context, nodes []*Node) []*NodeHandle {
	t.Helper()
	type result struct {
		handle *NodeHandle
		err    error
	}
	results := make([]result, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for i, n := range nodes {
		go func(i int, n *Node) {
			defer wg.Done()
			h, err := n.RunAsync(ctx)
			results[i] = result{handle: h, err: err}
		}(i, n)
	}
	wg.Wait()

	handles := make([]*NodeHandle, len(nodes))
	for i, r := range results {
		require.NoError(t, r.err)
		handles[i] = r.handle
	}
	return handles
}

func testConfig(index NodeID, numNodes int) *Configuration {
	addrs := make([]string, numNodes)
	for i := range addrs {
		addrs[i] = "unused"
	}
	cfg := NewConfiguration(index, numNodes, addrs, addrs)
	return cfg
}

// Scenario 1 (spec §8): N=1, one operator, one self-loop stream sending
// 100 integers to itself in order.
func TestNodeSingleNodeSelfLoop(t *testing.T) {
	var got []int
	graph := &Graph{
		Operators: []OperatorInfo{{
			ID:   0,
			Node: 0,
			Name: "loopback",
			Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
				return &funcExecutor{
					runFn: func(ctx context.Context) error {
						send, err := mgr.GetSendEndpoint(0)
						if err != nil {
							return err
						}
						recv, err := mgr.GetRecvEndpoint(0)
						if err != nil {
							return err
						}
						for i := range 100 {
							if err := send.Send(encodeInt(i)); err != nil {
								return err
							}
						}
						for range 100 {
							payload, ok := recv.Recv()
							if !ok {
								return NewError(KindDisconnected, errCanceled)
							}
							got = append(got, decodeInt(payload))
						}
						return nil
					},
				}, nil
			},
		}},
		Edges: []Edge{{Stream: 0, Producer: 0, Consumer: 0}},
	}

	node, err := NewNode(testConfig(0, 1), newMemTransport(newMemHub()), graph)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	handle, err := node.RunAsync(ctx)
	require.NoError(t, err)
	require.NoError(t, handle.Join())

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, got)

	// Idempotent shutdown: calling it again must not panic or error.
	require.NoError(t, handle.Shutdown())
	require.NoError(t, handle.Shutdown())
}

// Scenario 2 (spec §8): N=2 forwarder. Node 0 hosts source (a Driver
// hook, exercising Phase F), node 1 hosts sink; sink observes
// ["a","b","c"] in order.
func TestNodeTwoNodeForwarder(t *testing.T) {
	hub := newMemHub()
	rec := &recorder{}

	graph := &Graph{
		Operators: []OperatorInfo{
			{
				ID: 0, Node: 0, Name: "source",
				Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
					return &funcExecutor{}, nil
				},
				Driver: []DriverSetupFunc{func(mgr *ChannelManager) error {
					send, err := mgr.GetSendEndpoint(0)
					if err != nil {
						return err
					}
					for _, s := range []string{"a", "b", "c"} {
						if err := send.Send([]byte(s)); err != nil {
							return err
						}
					}
					return nil
				}},
			},
			{
				ID: 1, Node: 1, Name: "sink",
				Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
					return &funcExecutor{
						runFn: func(ctx context.Context) error {
							recv, err := mgr.GetRecvEndpoint(0)
							if err != nil {
								return err
							}
							for range 3 {
								payload, ok := recv.Recv()
								if !ok {
									return NewError(KindDisconnected, errCanceled)
								}
								rec.add(string(payload))
							}
							return nil
						},
					}, nil
				},
			},
		},
		Edges: []Edge{{Stream: 0, Producer: 0, Consumer: 1}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node0, err := NewNode(testConfig(0, 2), newMemTransport(hub), graph)
	require.NoError(t, err)
	node1, err := NewNode(testConfig(1, 2), newMemTransport(hub), graph)
	require.NoError(t, err)

	handles := runAllAsync(t, ctx, []*Node{node0, node1})
	require.NoError(t, handles[0].Join())
	require.NoError(t, handles[1].Join())

	require.Equal(t, []string{"a", "b", "c"}, rec.snapshot())
}

// Scenario 3 (spec §8): N=3 fan-out. Node 0 produces ints [0,10) on a
// single stream read by consumers on both node 1 and node 2; each must
// observe the full sequence in order, exercising a stream resolved to
// more than one consumer endpoint by [ChannelManager.GetSendEndpoint].
func TestNodeThreeNodeFanOut(t *testing.T) {
	hub := newMemHub()
	var rec1, rec2 []int
	var mu1, mu2 sync.Mutex

	graph := &Graph{
		Operators: []OperatorInfo{
			{
				ID: 0, Node: 0, Name: "producer",
				Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
					return &funcExecutor{
						runFn: func(ctx context.Context) error {
							send, err := mgr.GetSendEndpoint(100)
							if err != nil {
								return err
							}
							for i := range 10 {
								if err := send.Send(encodeInt(i)); err != nil {
									return err
								}
							}
							return nil
						},
					}, nil
				},
			},
			{
				ID: 1, Node: 1, Name: "consumer1",
				Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
					return &funcExecutor{
						runFn: func(ctx context.Context) error {
							recv, err := mgr.GetRecvEndpoint(100)
							if err != nil {
								return err
							}
							for range 10 {
								payload, ok := recv.Recv()
								if !ok {
									return NewError(KindDisconnected, errCanceled)
								}
								mu1.Lock()
								rec1 = append(rec1, decodeInt(payload))
								mu1.Unlock()
							}
							return nil
						},
					}, nil
				},
			},
			{
				ID: 2, Node: 2, Name: "consumer2",
				Runner: func(mgr *ChannelManager) (OperatorExecutor, error) {
					return &funcExecutor{
						runFn: func(ctx context.Context) error {
							recv, err := mgr.GetRecvEndpoint(100)
							if err != nil {
								return err
							}
							for range 10 {
								payload, ok := recv.Recv()
								if !ok {
									return NewError(KindDisconnected, errCanceled)
								}
								mu2.Lock()
								rec2 = append(rec2, decodeInt(payload))
								mu2.Unlock()
							}
							return nil
						},
					}, nil
				},
			},
		},
		Edges: []Edge{
			{Stream: 100, Producer: 0, Consumer: 1},
			{Stream: 100, Producer: 0, Consumer: 2},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nodes := make([]*Node, 3)
	for i := range 3 {
		n, err := NewNode(testConfig(NodeID(i), 3), newMemTransport(hub), graph)
		require.NoError(t, err)
		nodes[i] = n
	}
	handles := runAllAsync(t, ctx, nodes)
	for i := range 3 {
		require.NoError(t, handles[i].Join())
	}

	want := make([]int, 10)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, rec1)
	require.Equal(t, want, rec2)
}

// Scenario 4 (spec §8): startup barrier correctness. Node 1's transport
// is delayed; node 0 must not reach Phase H (RunAsync returning) until
// node 1's side of the handshake actually completes.
func TestNodeStartupBarrierWaitsForSlowPeer(t *testing.T) {
	hub := newMemHub()
	graph := &Graph{
		Operators: []OperatorInfo{
			{ID: 0, Node: 0, Runner: func(mgr *ChannelManager) (OperatorExecutor, error) { return &funcExecutor{}, nil }},
			{ID: 1, Node: 1, Runner: func(mgr *ChannelManager) (OperatorExecutor, error) { return &funcExecutor{}, nil }},
		},
	}

	release := make(chan struct{})
	delayed := &memTransport{hub: hub, delay: func(self NodeID) <-chan struct{} { return release }}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node0, err := NewNode(testConfig(0, 2), newMemTransport(hub), graph)
	require.NoError(t, err)
	node1, err := NewNode(testConfig(1, 2), delayed, graph)
	require.NoError(t, err)

	readyCh := make(chan struct{}, 1)
	go func() {
		h, err := node0.RunAsync(ctx)
		require.NoError(t, err)
		readyCh <- struct{}{}
		require.NoError(t, h.Join())
	}()

	select {
	case <-readyCh:
		t.Fatal("node 0 reached Phase H before node 1's delayed transport released")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	h1, err := node1.RunAsync(ctx)
	require.NoError(t, err)

	select {
	case <-readyCh:
	case <-time.After(5 * time.Second):
		t.Fatal("node 0 never reached Phase H after node 1 became available")
	}
	require.NoError(t, h1.Join())
}

// Scenario 5 (spec §8): graceful shutdown via NodeHandle mid-steady-state.
func TestNodeGracefulShutdown(t *testing.T) {
	hub := newMemHub()
	blockingRun := func(mgr *ChannelManager) (OperatorExecutor, error) {
		return &funcExecutor{
			runFn: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		}, nil
	}
	graph := &Graph{
		Operators: []OperatorInfo{
			{ID: 0, Node: 0, Runner: blockingRun},
			{ID: 1, Node: 1, Runner: blockingRun},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node0, err := NewNode(testConfig(0, 2), newMemTransport(hub), graph)
	require.NoError(t, err)
	node1, err := NewNode(testConfig(1, 2), newMemTransport(hub), graph)
	require.NoError(t, err)

	handles := runAllAsync(t, ctx, []*Node{node0, node1})

	require.NoError(t, handles[0].Shutdown())
	require.NoError(t, handles[1].Shutdown())
}

// Protocol violations during Phase B abort the node (spec §8 boundary
// behavior): a peer sending a non-initialization control message before
// the handshake completes is fatal.
func TestNodeProtocolViolationDuringPhaseBAborts(t *testing.T) {
	hub := newMemHub()
	graph := &Graph{
		Operators: []OperatorInfo{
			{ID: 0, Node: 0, Runner: func(mgr *ChannelManager) (OperatorExecutor, error) { return &funcExecutor{}, nil }},
		},
	}

	// A single-peer transport whose control Src delivers a non-init
	// message (RunOperator) before any real handshake traffic.
	badControl := newMemChan()
	payload, err := encodeControlMessage(ControlMessage{Kind: RunOperator, Operator: 0})
	require.NoError(t, err)
	badControl.ch <- Frame{Payload: payload}

	transport := &fixedPipesTransport{
		control: []Pipe{{Peer: 1, Sink: newMemChan(), Src: badControl}},
		data:    []Pipe{{Peer: 1, Sink: newMemChan(), Src: newMemChan()}},
	}

	node, err := NewNode(testConfig(0, 2), transport, graph)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = node.RunAsync(ctx)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, KindProtocolViolation, perr.Kind)
}

// fixedPipesTransport is a [Transport] fake that always returns the same
// pre-built pipes, for tests that need to control exactly what bytes a
// node observes during startup.
type fixedPipesTransport struct {
	control, data []Pipe
}

func (t *fixedPipesTransport) Connect(ctx context.Context, self NodeID, peers []NodeID) ([]Pipe, []Pipe, error) {
	return t.control, t.data, nil
}

func (t *fixedPipesTransport) Close() error { return nil }
