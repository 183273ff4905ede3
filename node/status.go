package node

import (
	"time"

	"trackmesh/pkg/monitor"
)

// Status is a point-in-time view of the node for operator tooling.
type Status struct {
	PeerID     string
	Addr       string
	Running    bool
	TrackCount int
	PeerCount  int
	Uptime     time.Duration

	BytesServed    int64
	BytesFetched   int64
	RequestsServed int64
	Discoveries    int64
}

// GetStatus assembles the current status snapshot.
func (n *Node) GetStatus() Status {
	n.tracksMu.RLock()
	trackCount := len(n.tracks)
	n.tracksMu.RUnlock()

	n.peersMu.RLock()
	peerCount := len(n.peerTable)
	n.peersMu.RUnlock()

	snap := monitor.Snapshot()

	return Status{
		PeerID:         n.id,
		Addr:           n.Addr(),
		Running:        n.Running(),
		TrackCount:     trackCount,
		PeerCount:      peerCount,
		Uptime:         time.Since(snap.Start).Round(time.Second),
		BytesServed:    snap.BytesServed,
		BytesFetched:   snap.BytesFetched,
		RequestsServed: snap.RequestsServed,
		Discoveries:    snap.Discoveries,
	}
}
