// Package protocol defines the JSON message shapes exchanged between
// mesh nodes. Every payload is a tagged struct so that malformed input
// is rejected at decode time instead of surfacing as a nil-field panic
// deep inside the node.
package protocol

import (
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("invalid protocol message")

// PeerDescriptor is a node's self-description: identity plus the
// address at which its service surface is reachable.
type PeerDescriptor struct {
	PeerID string `json:"peer_id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// Validate checks the fields a descriptor must carry before it is
// usable as a peer-table key and dial target.
func (d PeerDescriptor) Validate() error {
	if d.PeerID == "" {
		return fmt.Errorf("%w: empty peer_id", ErrInvalidMessage)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidMessage)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidMessage, d.Port)
	}
	return nil
}

// TrackRecord is the transport form of one catalog entry. ContentHash
// covers the raw bytes only, never the metadata.
type TrackRecord struct {
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	DurationSecs int    `json:"duration_secs"`
	Size         int64  `json:"size"`
	ContentHash  string `json:"content_hash"`
}

func (r TrackRecord) Validate() error {
	if r.ContentHash == "" {
		return fmt.Errorf("%w: track without content_hash", ErrInvalidMessage)
	}
	return nil
}

// DiscoverRequest announces the caller to a remote node. Tracks carries
// the content hashes the caller itself serves, so both sides learn from
// a single round trip.
type DiscoverRequest struct {
	Peer   PeerDescriptor `json:"peer"`
	Tracks []string       `json:"tracks,omitempty"`
}

func (r DiscoverRequest) Validate() error {
	return r.Peer.Validate()
}

// DiscoverResponse is the responder's half of the handshake.
type DiscoverResponse struct {
	Peer   PeerDescriptor `json:"peer"`
	Tracks []string       `json:"tracks"`
}

func (r DiscoverResponse) Validate() error {
	return r.Peer.Validate()
}

// PingResponse answers a liveness probe.
type PingResponse struct {
	Status string `json:"status"`
	PeerID string `json:"peer_id"`
}

// PeerInfo is one element of a peer-table snapshot.
type PeerInfo struct {
	PeerID   string   `json:"peer_id"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Tracks   []string `json:"tracks"`
	LastSeen int64    `json:"last_seen_unix"`
}
