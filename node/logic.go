package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"trackmesh/pkg/catalog"
	"trackmesh/pkg/discovery"
	"trackmesh/pkg/logger"
	"trackmesh/pkg/monitor"
	"trackmesh/pkg/peers"
	"trackmesh/pkg/protocol"
)

// AddContent hashes data, persists it and registers the record in the
// local catalog. Re-adding identical bytes is a no-op that returns the
// record already registered, whatever metadata came with the call.
func (n *Node) AddContent(data []byte, meta catalog.TrackMeta) (catalog.Track, error) {
	hash := catalog.ComputeHash(data)

	n.tracksMu.RLock()
	existing, ok := n.tracks[hash]
	n.tracksMu.RUnlock()
	if ok {
		return existing, nil
	}

	// The store write runs outside the catalog lock so concurrent
	// ingests of different content do not serialize on disk I/O. Put
	// is idempotent, so a racing duplicate costs nothing.
	if _, err := n.store.Put(data); err != nil {
		return catalog.Track{}, fmt.Errorf("storing content: %w", err)
	}

	track := catalog.NewTrack(meta, data)

	n.tracksMu.Lock()
	if existing, ok := n.tracks[hash]; ok {
		n.tracksMu.Unlock()
		return existing, nil
	}
	n.tracks[hash] = track
	n.saveCatalogLocked()
	n.tracksMu.Unlock()

	logger.Sugar.Infof("[Node] %s added content %s (%q, %d bytes)", n.id, hash, track.Title, track.Size)
	return track, nil
}

// AddFile ingests a file from disk. An empty title defaults to the
// file's base name.
func (n *Node) AddFile(path string, meta catalog.TrackMeta) (catalog.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Track{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if meta.Title == "" {
		meta.Title = filepath.Base(path)
	}
	return n.AddContent(data, meta)
}

// Tracks returns a snapshot of the local catalog, sorted by hash.
func (n *Node) Tracks() []catalog.Track {
	n.tracksMu.RLock()
	defer n.tracksMu.RUnlock()

	out := make([]catalog.Track, 0, len(n.tracks))
	for _, t := range n.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out
}

// LocalHashes returns the content hashes this node can serve directly.
func (n *Node) LocalHashes() []string {
	n.tracksMu.RLock()
	defer n.tracksMu.RUnlock()

	hashes := make([]string, 0, len(n.tracks))
	for h := range n.tracks {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

// Peers returns a snapshot of the peer table.
func (n *Node) Peers() []protocol.PeerInfo {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	out := make([]protocol.PeerInfo, 0, len(n.peerTable))
	for _, p := range n.peerTable {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// ConnectToPeer runs the discovery handshake against host:port and, on
// success, upserts the resulting record keyed by its peer id. A failed
// handshake leaves the peer table exactly as it was.
func (n *Node) ConnectToPeer(ctx context.Context, host string, port int) (*peers.Peer, error) {
	peer, err := n.disc.Discover(ctx, host, port, n.SelfDescriptor(), n.LocalHashes())
	if err != nil {
		return nil, err
	}
	if peer.ID == n.id {
		return nil, fmt.Errorf("refusing to peer with self at %s:%d", host, port)
	}

	peer.Touch()
	n.peersMu.Lock()
	n.peerTable[peer.ID] = peer
	n.peersMu.Unlock()

	monitor.RecordDiscovery()
	return peer, nil
}

// Location says where FindContent located a hash: on local disk or at
// a known peer.
type Location struct {
	Local  bool
	PeerID string
}

// FindContent checks local storage first, then scans the peer table
// for any peer advertising the hash. When several peers advertise it,
// the most recently seen peer wins; callers wanting another policy can
// scan Peers() themselves.
func (n *Node) FindContent(hash string) (Location, error) {
	n.tracksMu.RLock()
	_, local := n.tracks[hash]
	n.tracksMu.RUnlock()
	if local || n.store.Exists(hash) {
		return Location{Local: true}, nil
	}

	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	var best *peers.Peer
	for _, p := range n.peerTable {
		if !p.HasContent(hash) {
			continue
		}
		if best == nil || p.LastSeen.After(best.LastSeen) {
			best = p
		}
	}
	if best == nil {
		return Location{}, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	return Location{PeerID: best.ID}, nil
}

// FetchFromPeer downloads hash from the given peer, verifies the bytes
// digest to the requested address, persists them and registers a
// catalog record. Nothing is stored when verification fails.
func (n *Node) FetchFromPeer(ctx context.Context, peerID, hash string) (catalog.Track, error) {
	n.peersMu.RLock()
	peer, ok := n.peerTable[peerID]
	var addr string
	if ok {
		addr = peer.Addr()
	}
	n.peersMu.RUnlock()
	if !ok {
		return catalog.Track{}, fmt.Errorf("unknown peer %s", peerID)
	}

	data, err := n.disc.FetchContent(ctx, addr, hash)
	if err != nil {
		return catalog.Track{}, err
	}

	if err := n.store.PutVerified(hash, data); err != nil {
		return catalog.Track{}, err
	}
	monitor.RecordBytesFetched(int64(len(data)))

	track := n.recoverTrackMeta(ctx, addr, hash, int64(len(data)))

	n.tracksMu.Lock()
	n.tracks[hash] = track
	n.saveCatalogLocked()
	n.tracksMu.Unlock()

	n.peersMu.Lock()
	if p, still := n.peerTable[peerID]; still {
		p.Touch()
	}
	n.peersMu.Unlock()

	logger.Sugar.Infof("[Node] %s fetched %s (%d bytes) from peer %s", n.id, hash, len(data), peerID)
	return track, nil
}

// recoverTrackMeta asks the serving peer for its catalog so the
// fetched bytes keep their descriptive metadata. Best effort: a bare
// record is enough when the peer's catalog is unavailable.
func (n *Node) recoverTrackMeta(ctx context.Context, addr, hash string, size int64) catalog.Track {
	records, err := n.disc.FetchTracks(ctx, addr)
	if err == nil {
		for _, rec := range records {
			if rec.ContentHash == hash {
				return catalog.FromTransport(rec)
			}
		}
	}
	return catalog.Track{Size: size, ContentHash: hash}
}

// Fetch resolves hash anywhere in the mesh and returns its bytes,
// pulling from a peer first when the content is not yet local.
func (n *Node) Fetch(ctx context.Context, hash string) ([]byte, error) {
	loc, err := n.FindContent(hash)
	if err != nil {
		return nil, err
	}
	if !loc.Local {
		if _, err := n.FetchFromPeer(ctx, loc.PeerID, hash); err != nil {
			return nil, err
		}
	}
	return n.store.Get(hash)
}

// PruneStalePeers drops peers whose last successful interaction is
// older than maxAge and reports how many were removed.
func (n *Node) PruneStalePeers(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	removed := 0
	for id, p := range n.peerTable {
		if p.LastSeen.Before(cutoff) {
			delete(n.peerTable, id)
			removed++
		}
	}
	return removed
}

// DiscoverLAN browses mDNS announcements until ctx expires and runs
// the handshake against every node found. Unreachable peers are logged
// and skipped; a browse round never fails the node.
func (n *Node) DiscoverLAN(ctx context.Context) (int, error) {
	resolver, err := discovery.NewResolver()
	if err != nil {
		return 0, err
	}

	services, err := resolver.Browse(ctx)
	if err != nil {
		return 0, err
	}

	connected := 0
	for info := range services {
		if info.PeerID() == n.id {
			continue
		}
		if _, err := n.ConnectToPeer(ctx, info.IPs[0], info.Port); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			logger.Sugar.Warnf("[Node] %s: LAN peer %s:%d unreachable: %v", n.id, info.IPs[0], info.Port, err)
			continue
		}
		connected++
	}
	return connected, nil
}
