//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: bassosimone/nop dnsoverhttps.go (request/response exchange
// pattern over net/http) and observeconn.go (structured I/O logging).
//

package rendezvoustransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gabrik/erdos"
)

// Rendezvous is the discovery point spec §4.1's second transport family
// needs: a place every node announces its presence and blocks until it
// can see every other peer, before any point-to-point pipe is dialed.
// Modeled on the original Rust source's zenoh_transport feature, whose
// `connect` blocks until exactly N-1 peers are visible via a rendezvous
// session (spec §9 Design Notes).
type Rendezvous interface {
	// Announce registers self as present for this run.
	Announce(ctx context.Context, self erdos.NodeID) error

	// AwaitPeers blocks until every id in peers has announced itself.
	AwaitPeers(ctx context.Context, peers []erdos.NodeID) error
}

// LocalRendezvous is an in-process [Rendezvous] backed by a shared
// condition variable: every node's [*Transport] in the same test or
// single-process deployment holds a pointer to the same *LocalRendezvous,
// the way spec's expansion describes "deterministic, single-process
// multi-node tests" for this family (SPEC_FULL §B). Construct one with
// [NewLocalRendezvous] and share it across every node's [Transport].
type LocalRendezvous struct {
	mu      sync.Mutex
	cond    *sync.Cond
	present map[erdos.NodeID]struct{}
}

// NewLocalRendezvous returns an empty [*LocalRendezvous].
func NewLocalRendezvous() *LocalRendezvous {
	r := &LocalRendezvous{present: make(map[erdos.NodeID]struct{})}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Announce implements [Rendezvous].
func (r *LocalRendezvous) Announce(ctx context.Context, self erdos.NodeID) error {
	r.mu.Lock()
	r.present[self] = struct{}{}
	r.mu.Unlock()
	r.cond.Broadcast()
	return nil
}

// AwaitPeers implements [Rendezvous]. It wakes on every Announce and
// re-checks membership; ctx cancellation unblocks it via a watcher
// goroutine that broadcasts on the same condition variable.
func (r *LocalRendezvous) AwaitPeers(ctx context.Context, peers []erdos.NodeID) error {
	stop := context.AfterFunc(ctx, r.cond.Broadcast)
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.hasAllLocked(peers) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.cond.Wait()
	}
	return ctx.Err()
}

func (r *LocalRendezvous) hasAllLocked(peers []erdos.NodeID) bool {
	for _, p := range peers {
		if _, ok := r.present[p]; !ok {
			return false
		}
	}
	return true
}

// snapshot returns the currently-visible peer set.
func (r *LocalRendezvous) snapshot() []erdos.NodeID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]erdos.NodeID, 0, len(r.present))
	for id := range r.present {
		out = append(out, id)
	}
	return out
}

// HTTPRendezvous is a [Rendezvous] for standalone multi-process runs
// against a shared rendezvous address: POST /announce registers a node,
// GET /peers lists who has announced so far. Grounded on the teacher's
// HTTP request/response exchange pattern (dnsoverhttps.go), adapted from
// a DNS payload to a tiny JSON peer-set payload.
type HTTPRendezvous struct {
	// BaseURL is the rendezvous server's base URL, e.g.
	// "http://rendezvous.internal:7446".
	BaseURL string

	// Client performs the HTTP round trips. Defaults to http.DefaultClient
	// when nil.
	Client *http.Client

	// Logger logs each announce/poll round trip.
	Logger erdos.SLogger

	// PollInterval paces AwaitPeers' polling loop. Defaults to 200ms.
	PollInterval time.Duration
}

var _ Rendezvous = &HTTPRendezvous{}

func (h *HTTPRendezvous) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTPRendezvous) logger() erdos.SLogger {
	if h.Logger != nil {
		return h.Logger
	}
	return erdos.DefaultSLogger()
}

// Announce implements [Rendezvous] by POSTing self's id to the
// rendezvous server's /announce endpoint.
func (h *HTTPRendezvous) Announce(ctx context.Context, self erdos.NodeID) error {
	body, _ := json.Marshal(announceRequest{Node: self})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/announce", bytes.NewReader(body))
	if err != nil {
		return erdos.NewError(erdos.KindTransportIO, err)
	}
	req.Header.Set("content-type", "application/json")
	h.logger().Info("rendezvousAnnounceStart", slog.Int("node", int(self)))
	resp, err := h.client().Do(req)
	if err != nil {
		return erdos.NewError(erdos.KindTransportIO, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return erdos.NewError(erdos.KindTransportIO, fmt.Errorf("rendezvoustransport: announce status %d", resp.StatusCode))
	}
	return nil
}

// AwaitPeers implements [Rendezvous] by polling /peers until every
// requested id has announced itself or ctx is done.
func (h *HTTPRendezvous) AwaitPeers(ctx context.Context, peers []erdos.NodeID) error {
	interval := h.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		visible, err := h.poll(ctx)
		if err != nil {
			return err
		}
		if containsAll(visible, peers) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HTTPRendezvous) poll(ctx context.Context) ([]erdos.NodeID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/peers", nil)
	if err != nil {
		return nil, erdos.NewError(erdos.KindTransportIO, err)
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, erdos.NewError(erdos.KindTransportIO, err)
	}
	defer resp.Body.Close()
	var out peersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, erdos.NewError(erdos.KindSerialization, err)
	}
	return out.Nodes, nil
}

type announceRequest struct {
	Node erdos.NodeID `json:"node"`
}

type peersResponse struct {
	Nodes []erdos.NodeID `json:"nodes"`
}

func containsAll(have, want []erdos.NodeID) bool {
	set := make(map[erdos.NodeID]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
