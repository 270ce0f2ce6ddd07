// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Node is one runtime instance among the fixed set of N cooperating nodes
// for a run. Construct one with [NewNode], then drive it with [Node.Run]
// (blocking) or [Node.RunAsync] (returns a [*NodeHandle] once the node
// reaches Phase H).
type Node struct {
	cfg       *Configuration
	transport Transport
	graph     *Graph

	shutdown chan struct{}

	initializedOnce chan struct{}
}

// NewNode constructs a [*Node] from cfg, a [Transport] implementation,
// and the dataflow [Graph]. cfg is validated; graph is validated against
// cfg.NumNodes at the start of Phase C.
func NewNode(cfg *Configuration, transport Transport, graph *Graph) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		cfg:             cfg,
		transport:       transport,
		graph:           graph,
		shutdown:        make(chan struct{}, 1),
		initializedOnce: make(chan struct{}),
	}, nil
}

// localOperatorTask tracks one local operator's lifecycle across Phases
// D, E, and I.
type localOperatorTask struct {
	info       *OperatorInfo
	executor   OperatorExecutor
	runCommand chan struct{}
}

// Run drives the node through Phases A-I and then supervises until
// shutdown or a fatal error, blocking on a dedicated caller goroutine as
// the original system blocks the dedicated OS thread that invokes
// NodeHandle::run_async. ctx cancellation requests shutdown.
func (n *Node) Run(ctx context.Context) error {
	self := n.cfg.Index
	numNodes := n.cfg.NumNodes
	logger := n.cfg.Logger
	cls := n.cfg.ErrClassifier

	logger.Info("nodeRunStart", slog.Int("node", int(self)), slog.Int("numNodes", numNodes))

	peers := make([]NodeID, 0, numNodes-1)
	for i := range numNodes {
		if NodeID(i) != self {
			peers = append(peers, NodeID(i))
		}
	}

	// Phase A: transport bring-up.
	controlPipes, dataPipes, err := n.transport.Connect(ctx, self, peers)
	if err != nil {
		return NewError(KindTransportIO, err)
	}

	hub := NewControlHandler()
	receivers := NewChannelsToReceivers()
	senders := NewChannelsToSenders()

	group, workerCtx := errgroup.WithContext(ctx)
	for _, p := range controlPipes {
		csw := newControlSenderWorker(p.Peer, p.Sink, hub, logger, cls)
		hub.registerControlSender(p.Peer, csw)
	}
	for _, p := range controlPipes {
		crw := newControlReceiverWorker(p.Peer, p.Src, hub, logger, cls)
		hub.registerControlReceiver(p.Peer, crw)
		group.Go(func() error { return crw.run(workerCtx) })
	}

	var mgrReadyFlag atomic.Bool
	mgrReady := mgrReadyFlag.Load

	var queryResponder func(context.Context) error
	if qr, ok := n.transport.(QueryResponder); ok {
		queryResponder = qr.RunQueryResponder
	}

	for _, p := range dataPipes {
		dsw := newDataSenderWorker(p.Peer, p.Sink, hub, logger, cls)
		if err := senders.Register(p.Peer, dsw); err != nil {
			return err
		}
		group.Go(func() error { return dsw.run(workerCtx) })
	}
	for _, p := range dataPipes {
		drw := newDataReceiverWorker(p.Peer, p.Src, receivers, hub, logger, cls, mgrReady)
		group.Go(func() error { return drw.run(workerCtx) })
	}

	// The four senders/receivers each announce their own readiness. Control
	// receivers, data senders, and data receivers do so when their run loop
	// starts; control senders have no run loop and announce here. Every
	// notice is pushed onto this node's own control handler only: nothing
	// is sent to peers, so Phase B completes once this node's own workers
	// for every peer are running, without waiting on any peer's workers.
	for _, p := range controlPipes {
		if w, ok := hub.senders[p.Peer]; ok {
			w.announce()
		}
	}

	// Phase B: communication handshake.
	if err := n.awaitCommunicationInitialized(ctx, hub, peers); err != nil {
		return err
	}

	// Phase C: local scheduling.
	sg, err := Schedule(n.graph, numNodes)
	if err != nil {
		return err
	}
	if n.cfg.GraphFilename != "" {
		if err := sg.WriteDOT(n.cfg.GraphFilename); err != nil {
			return NewError(KindTransportIO, err)
		}
	}
	mgr, err := NewChannelManager(self, sg, receivers, senders)
	if err != nil {
		return err
	}
	mgrReadyFlag.Store(true)
	localOps := sg.LocalOperators(self)

	// Phase D: operator spawn.
	tasks := make([]*localOperatorTask, 0, len(localOps))
	operatorInitialized := make(chan OperatorID, len(localOps))
	var opGroup errgroup.Group
	for _, opInfo := range localOps {
		executor, err := opInfo.Runner(mgr)
		if err != nil {
			return NewError(KindProtocolViolation, fmt.Errorf("operator %d runner: %w", opInfo.ID, err))
		}
		task := &localOperatorTask{info: opInfo, executor: executor, runCommand: make(chan struct{}, 1)}
		tasks = append(tasks, task)
		opGroup.Go(func() error {
			if err := executor.Initialize(ctx); err != nil {
				return fmt.Errorf("operator %d initialize: %w", task.info.ID, err)
			}
			operatorInitialized <- task.info.ID
			select {
			case <-ctx.Done():
				return nil
			case <-task.runCommand:
			}
			return executor.Run(ctx)
		})
	}

	// Phase E: local barrier.
	if err := n.awaitLocalOperatorsInitialized(ctx, operatorInitialized, len(tasks)); err != nil {
		return err
	}

	// Phase F: driver setup.
	for _, opInfo := range localOps {
		for _, hook := range opInfo.Driver {
			if err := hook(mgr); err != nil {
				return NewError(KindProtocolViolation, fmt.Errorf("driver setup for operator %d: %w", opInfo.ID, err))
			}
		}
	}

	// Phase G: global barrier.
	if err := hub.broadcastToNodes(ctx, ControlMessage{Kind: AllOperatorsInitializedOnNode, Node: self}); err != nil {
		return NewError(KindDisconnected, err)
	}
	if err := n.awaitAllOperatorsInitialized(ctx, hub); err != nil {
		return err
	}

	// Phase H: release driver.
	close(n.initializedOnce)

	// Phase I: run.
	for _, task := range tasks {
		task.runCommand <- struct{}{}
	}

	logger.Info("nodeRunReady", slog.Int("node", int(self)))
	return n.supervise(ctx, numNodes, group, &opGroup, queryResponder)
}

// awaitCommunicationInitialized implements Phase B: four sets seeded with
// self, filled by reading initialization messages until each has size N.
func (n *Node) awaitCommunicationInitialized(ctx context.Context, hub *ControlHandler, peers []NodeID) error {
	self := n.cfg.Index
	numNodes := n.cfg.NumNodes

	sets := map[ControlKind]map[NodeID]struct{}{
		ControlSenderInitialized:   {self: {}},
		ControlReceiverInitialized: {self: {}},
		DataSenderInitialized:      {self: {}},
		DataReceiverInitialized:    {self: {}},
	}
	done := func() bool {
		for _, s := range sets {
			if len(s) != numNodes {
				return false
			}
		}
		return true
	}
	for !done() {
		msg, err := hub.readSenderOrReceiverInitialized(ctx)
		if err != nil {
			return err
		}
		sets[msg.Kind][msg.Node] = struct{}{}
	}
	return nil
}

// awaitLocalOperatorsInitialized implements Phase E.
func (n *Node) awaitLocalOperatorsInitialized(ctx context.Context, ch <-chan OperatorID, want int) error {
	seen := make(map[OperatorID]struct{}, want)
	for len(seen) < want {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-ch:
			seen[id] = struct{}{}
		}
	}
	return nil
}

// awaitAllOperatorsInitialized implements Phase G.
func (n *Node) awaitAllOperatorsInitialized(ctx context.Context, hub *ControlHandler) error {
	numNodes := n.cfg.NumNodes
	seen := map[NodeID]struct{}{n.cfg.Index: {}}
	for len(seen) != numNodes {
		node, err := hub.readAllOperatorsInitializedOnNode(ctx)
		if err != nil {
			return err
		}
		seen[node] = struct{}{}
	}
	return nil
}

// supervise races the transport worker-group futures, the operator run
// future, the query-responder future (when the transport is
// discovery-based), and the shutdown signal. For N==1, a single node has
// no peers and thus no transport workers or query-responder session to
// race: the worker-group futures (all vacuously empty) are joined first
// and treated as non-fatal, and only the operator future and shutdown
// signal are raced, per §4.6's N==1 special case.
func (n *Node) supervise(ctx context.Context, numNodes int, workers, operators *errgroup.Group, queryResponder func(context.Context) error) error {
	logger := n.cfg.Logger

	operatorsDone := make(chan error, 1)
	go func() { operatorsDone <- operators.Wait() }()

	if numNodes == 1 {
		if err := workers.Wait(); err != nil {
			logger.Info("transportWorkersDone", slog.Any("err", err))
		}
		select {
		case err := <-operatorsDone:
			if err != nil {
				logger.Info("operatorFailed", slog.Any("err", err))
				return NewError(KindDisconnected, err)
			}
			return nil
		case <-n.shutdown:
			logger.Info("nodeShutdown")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	workersDone := make(chan error, 1)
	go func() { workersDone <- workers.Wait() }()

	// Query-responder completion (with or without error) means the
	// discovery session backing every pipe is degraded, as fatal as a
	// transport-worker error. A nil queryResponder leaves qrDone nil,
	// which never fires in the select below.
	var qrDone chan error
	if queryResponder != nil {
		qrDone = make(chan error, 1)
		go func() { qrDone <- queryResponder(ctx) }()
	}

	select {
	case err := <-workersDone:
		if err != nil {
			logger.Info("transportWorkerFailed", slog.Any("err", err))
			return NewError(KindTransportIO, err)
		}
		return nil
	case err := <-operatorsDone:
		if err != nil {
			logger.Info("operatorFailed", slog.Any("err", err))
			return NewError(KindDisconnected, err)
		}
		return nil
	case err := <-qrDone:
		logger.Info("queryResponderDone", slog.Any("err", err))
		if err == nil {
			err = errors.New("query responder stopped")
		}
		return NewError(KindTransportIO, err)
	case <-n.shutdown:
		logger.Info("nodeShutdown")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAsync starts the node on a new goroutine and returns a [*NodeHandle]
// once the node reaches Phase H, or an error if startup fails first.
func (n *Node) RunAsync(ctx context.Context) (*NodeHandle, error) {
	runErr := make(chan error, 1)
	go func() {
		runErr <- n.Run(ctx)
	}()

	select {
	case <-n.initializedOnce:
		return &NodeHandle{node: n, runErr: runErr}, nil
	case err := <-runErr:
		if err == nil {
			err = fmt.Errorf("erdos: node exited before reaching Phase H")
		}
		return nil, err
	}
}
