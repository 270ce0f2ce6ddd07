// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"context"
	"sync"
)

// dataReceiverWorker reads frames from one peer's data pipe, looks up the
// target local queue in [ChannelsToReceivers] by stream id, and enqueues.
// Frames for streams the channel manager has not yet registered are held
// in a small staging area and retried; persistent unknowns after manager
// readiness are fatal.
type dataReceiverWorker struct {
	peer   NodeID
	src    FramedSource
	recvs  *ChannelsToReceivers
	hub    controlHub
	logger SLogger
	cls    ErrClassifier

	mgrReady func() bool

	mu      sync.Mutex
	staging []Frame
}

func newDataReceiverWorker(peer NodeID, src FramedSource, recvs *ChannelsToReceivers, hub controlHub, logger SLogger, cls ErrClassifier, mgrReady func() bool) *dataReceiverWorker {
	return &dataReceiverWorker{
		peer:     peer,
		src:      src,
		recvs:    recvs,
		hub:      hub,
		logger:   logger,
		cls:      cls,
		mgrReady: mgrReady,
	}
}

// run reads frames until ctx is done or the pipe closes. It emits
// DataReceiverInitialized once on entry.
func (w *dataReceiverWorker) run(ctx context.Context) error {
	w.hub.emitInitialized(DataReceiverInitialized, w.peer)
	for {
		frame, err := w.src.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Info("dataReceiverDone", "peer", w.peer, "err", err, "errClass", w.cls.Classify(err))
			return NewPeerError(KindDisconnected, w.peer, err)
		}
		if err := w.deliver(frame); err != nil {
			return err
		}
	}
}

// deliver routes frame to its registered queue, replaying any staged
// frames whose stream has since been registered.
func (w *dataReceiverWorker) deliver(frame Frame) error {
	w.mu.Lock()
	w.staging = append(w.staging, frame)
	pending := w.staging
	w.staging = nil
	w.mu.Unlock()

	var stillUnknown []Frame
	for _, f := range pending {
		q, ok := w.recvs.Lookup(f.StreamID)
		if !ok {
			if w.mgrReady() {
				return NewPeerError(KindProtocolViolation, w.peer, errUnknownStream(f.StreamID))
			}
			stillUnknown = append(stillUnknown, f)
			continue
		}
		q.Send(f.Payload)
	}

	if len(stillUnknown) > 0 {
		w.mu.Lock()
		w.staging = append(w.staging, stillUnknown...)
		w.mu.Unlock()
	}
	return nil
}

// controlReceiverWorker reads [ControlMessage] values from one peer's
// control pipe and dispatches them into the hub. It emits
// ControlReceiverInitialized once on entry.
type controlReceiverWorker struct {
	peer   NodeID
	src    FramedSource
	hub    controlHub
	logger SLogger
	cls    ErrClassifier
}

func newControlReceiverWorker(peer NodeID, src FramedSource, hub controlHub, logger SLogger, cls ErrClassifier) *controlReceiverWorker {
	return &controlReceiverWorker{peer: peer, src: src, hub: hub, logger: logger, cls: cls}
}

func (w *controlReceiverWorker) run(ctx context.Context) error {
	w.hub.emitInitialized(ControlReceiverInitialized, w.peer)
	for {
		frame, err := w.src.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Info("controlReceiverDone", "peer", w.peer, "err", err, "errClass", w.cls.Classify(err))
			return NewPeerError(KindDisconnected, w.peer, err)
		}
		msg, err := decodeControlMessage(frame.Payload)
		if err != nil {
			return NewPeerError(KindSerialization, w.peer, err)
		}
		w.hub.dispatch(msg)
	}
}
