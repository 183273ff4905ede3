package node

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"trackmesh/pkg/logger"
	"trackmesh/pkg/monitor"
	"trackmesh/pkg/peers"
	"trackmesh/pkg/protocol"
	"trackmesh/pkg/store"
)

// routes wires the service surface. Server-side discovery handling
// lives here, mirroring the client role in pkg/discovery.
func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", n.handlePing)
	mux.HandleFunc("GET /peers", n.handlePeers)
	mux.HandleFunc("GET /tracks", n.handleTracks)
	mux.HandleFunc("POST /discover", n.handleDiscover)
	mux.HandleFunc("GET /content/{hash}", n.handleContent)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("[Node] failed to encode response: %v", err)
	}
}

func (n *Node) handlePing(w http.ResponseWriter, r *http.Request) {
	monitor.RecordRequest()
	writeJSON(w, http.StatusOK, protocol.PingResponse{Status: "ok", PeerID: n.id})
}

func (n *Node) handlePeers(w http.ResponseWriter, r *http.Request) {
	monitor.RecordRequest()
	writeJSON(w, http.StatusOK, n.Peers())
}

func (n *Node) handleTracks(w http.ResponseWriter, r *http.Request) {
	monitor.RecordRequest()

	tracks := n.Tracks()
	records := make([]protocol.TrackRecord, 0, len(tracks))
	for _, t := range tracks {
		records = append(records, t.Transport())
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDiscover is the inbound half of the handshake: learn about the
// caller, answer with our own identity and catalog.
func (n *Node) handleDiscover(w http.ResponseWriter, r *http.Request) {
	monitor.RecordRequest()

	var req protocol.DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed discover request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Peer.PeerID == n.id {
		http.Error(w, "cannot discover self", http.StatusBadRequest)
		return
	}

	// The table is keyed by peer id, so a reconnecting peer overwrites
	// its previous entry instead of duplicating it.
	caller := peers.FromDescriptor(req.Peer)
	for _, hash := range req.Tracks {
		caller.AddContent(hash)
	}
	caller.Touch()

	n.peersMu.Lock()
	n.peerTable[caller.ID] = caller
	n.peersMu.Unlock()

	monitor.RecordDiscovery()
	logger.Sugar.Infof("[Node] %s learned peer %s at %s via inbound discovery", n.id, caller.ID, caller.Addr())

	writeJSON(w, http.StatusOK, protocol.DiscoverResponse{
		Peer:   n.SelfDescriptor(),
		Tracks: n.LocalHashes(),
	})
}

func (n *Node) handleContent(w http.ResponseWriter, r *http.Request) {
	monitor.RecordRequest()

	hash := r.PathValue("hash")
	data, err := n.store.Get(hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidHash) {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		logger.Sugar.Errorf("[Node] %s: reading %s for %s: %v", n.id, hash, r.RemoteAddr, err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logger.Sugar.Warnf("[Node] %s: sending %s to %s: %v", n.id, hash, r.RemoteAddr, err)
		return
	}
	monitor.RecordBytesServed(int64(len(data)))
}
