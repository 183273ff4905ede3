// Package peers tracks what the node knows about one remote
// participant: identity, reachability, advertised content, liveness.
// It is deliberately dumb bookkeeping; the node owns all locking and
// all networking.
package peers

import (
	"net"
	"sort"
	"strconv"
	"time"

	"trackmesh/pkg/protocol"
)

// Peer is one remote participant. The ID is generated by the remote
// node itself, not derived from its address, so a peer keeps its
// identity across address changes within a session.
type Peer struct {
	ID   string
	Host string
	Port int

	available map[string]struct{}
	LastSeen  time.Time
}

func New(id, host string, port int) *Peer {
	return &Peer{
		ID:        id,
		Host:      host,
		Port:      port,
		available: make(map[string]struct{}),
		LastSeen:  time.Now(),
	}
}

// FromDescriptor materializes a peer from its self-description.
func FromDescriptor(d protocol.PeerDescriptor) *Peer {
	return New(d.PeerID, d.Host, d.Port)
}

// AddContent records that the peer claims to serve hash. Adding a hash
// already present is a no-op.
func (p *Peer) AddContent(hash string) {
	p.available[hash] = struct{}{}
}

func (p *Peer) HasContent(hash string) bool {
	_, ok := p.available[hash]
	return ok
}

// ContentHashes returns the advertised set in sorted order.
func (p *Peer) ContentHashes() []string {
	hashes := make([]string, 0, len(p.available))
	for h := range p.available {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

// ContentCount reports the size of the advertised set.
func (p *Peer) ContentCount() int {
	return len(p.available)
}

// Touch marks a successful interaction with the peer.
func (p *Peer) Touch() {
	p.LastSeen = time.Now()
}

// Addr returns the dialable host:port of the peer.
func (p *Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Descriptor returns the wire self-description for this peer.
func (p *Peer) Descriptor() protocol.PeerDescriptor {
	return protocol.PeerDescriptor{PeerID: p.ID, Host: p.Host, Port: p.Port}
}

// Info returns the snapshot form served by /peers.
func (p *Peer) Info() protocol.PeerInfo {
	return protocol.PeerInfo{
		PeerID:   p.ID,
		Host:     p.Host,
		Port:     p.Port,
		Tracks:   p.ContentHashes(),
		LastSeen: p.LastSeen.Unix(),
	}
}
