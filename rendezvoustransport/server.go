// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvoustransport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gabrik/erdos"
)

// Server answers the /announce and /peers endpoints [HTTPRendezvous]
// polls, for standalone multi-process deployments sharing one rendezvous
// address (SPEC_FULL §B). It implements [http.Handler] so the caller
// decides how to serve it (http.Server, behind a reverse proxy, etc.).
type Server struct {
	mu      sync.Mutex
	present map[erdos.NodeID]struct{}
}

// NewServer returns an empty [*Server].
func NewServer() *Server {
	return &Server{present: make(map[erdos.NodeID]struct{})}
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/announce":
		s.handleAnnounce(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/peers":
		s.handlePeers(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.present[req.Node] = struct{}{}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	nodes := make([]erdos.NodeID, 0, len(s.present))
	for id := range s.present {
		nodes = append(nodes, id)
	}
	s.mu.Unlock()
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(peersResponse{Nodes: nodes})
}

// RunQueryResponder runs until ctx is cancelled and then returns nil;
// Server itself never errors once started. It gives *Server the
// [erdos.QueryResponder] method set. A node's supervisor races only the
// responder of its configured transport ([Transport.RunQueryResponder]),
// not this one.
func (s *Server) RunQueryResponder(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
