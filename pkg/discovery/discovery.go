// Package discovery implements the client side of the peer handshake:
// one round trip that turns an address into a populated peer record.
// The matching server side lives in the node's HTTP surface so the two
// roles stay independently testable.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"trackmesh/pkg/logger"
	"trackmesh/pkg/peers"
	"trackmesh/pkg/protocol"
)

var (
	// ErrPeerUnreachable covers dial failures, timeouts and non-OK
	// HTTP status from the remote side.
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrProtocolViolation covers responses that do not conform to the
	// handshake shape.
	ErrProtocolViolation = errors.New("peer violated discovery protocol")
)

// DefaultTimeout bounds a whole handshake round trip.
const DefaultTimeout = 5 * time.Second

// Client performs discovery handshakes on behalf of a node.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Discover announces self (and the hashes it serves) to the node at
// host:port and materializes the response into a peer record. On any
// failure it returns nil and an error; the caller's peer table is never
// touched from here.
func (c *Client) Discover(ctx context.Context, host string, port int, self protocol.PeerDescriptor, announce []string) (*peers.Peer, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	body, err := json.Marshal(protocol.DiscoverRequest{Peer: self, Tracks: announce})
	if err != nil {
		return nil, fmt.Errorf("encoding discover request: %w", err)
	}

	url := fmt.Sprintf("http://%s/discover", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building discover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered %s", ErrPeerUnreachable, addr, resp.Status)
	}

	var dr protocol.DiscoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("%w: undecodable response from %s: %v", ErrProtocolViolation, addr, err)
	}
	if err := dr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	peer := peers.FromDescriptor(dr.Peer)
	// The responder may listen on a wildcard host; the address we just
	// reached it at is the one worth remembering.
	if peer.Host == "" || peer.Host == "0.0.0.0" || peer.Host == "::" {
		peer.Host = host
	}
	for _, hash := range dr.Tracks {
		peer.AddContent(hash)
	}

	logger.Sugar.Infof("[Discovery] handshake with %s succeeded: peer=%s tracks=%d", addr, peer.ID, peer.ContentCount())
	return peer, nil
}

// FetchContent retrieves the raw bytes for hash from a peer's content
// endpoint. It distinguishes a peer that is unreachable from a peer
// that simply does not have the content.
func (c *Client) FetchContent(ctx context.Context, peerAddr, hash string) ([]byte, error) {
	url := fmt.Sprintf("http://%s/content/%s", peerAddr, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building content request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, peerAddr, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: peer %s no longer serves %s", ErrProtocolViolation, peerAddr, hash)
	default:
		return nil, fmt.Errorf("%w: %s answered %s", ErrPeerUnreachable, peerAddr, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading content body from %s: %v", ErrPeerUnreachable, peerAddr, err)
	}
	return data, nil
}

// FetchTracks pulls a peer's catalog snapshot, used to recover track
// metadata after a content fetch.
func (c *Client) FetchTracks(ctx context.Context, peerAddr string) ([]protocol.TrackRecord, error) {
	url := fmt.Sprintf("http://%s/tracks", peerAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building tracks request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, peerAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered %s", ErrPeerUnreachable, peerAddr, resp.Status)
	}

	var records []protocol.TrackRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: undecodable tracks from %s: %v", ErrProtocolViolation, peerAddr, err)
	}
	return records, nil
}
