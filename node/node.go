// Package node ties the store, catalog, peer table and discovery
// client together and exposes the mesh-facing HTTP service.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"trackmesh/pkg/catalog"
	"trackmesh/pkg/config"
	"trackmesh/pkg/discovery"
	"trackmesh/pkg/logger"
	"trackmesh/pkg/peers"
	"trackmesh/pkg/protocol"
	"trackmesh/pkg/store"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the content is absent locally and no known
	// peer advertises it. Distinct from discovery.ErrPeerUnreachable,
	// so "doesn't exist anywhere" never masquerades as "holder is down".
	ErrNotFound = errors.New("content not found anywhere in the mesh")

	ErrAlreadyRunning = errors.New("node already running")
	ErrNotRunning     = errors.New("node not running")
)

// Node owns the local catalog and the peer table. Both maps are
// mutated only here, which keeps the locking surface in one place.
type Node struct {
	cfg *config.Config
	id  string

	store *store.Store
	disc  *discovery.Client

	tracksMu sync.RWMutex
	tracks   map[string]catalog.Track // content hash -> record

	peersMu   sync.RWMutex
	peerTable map[string]*peers.Peer // peer id -> record

	// Lifecycle. A node is either stopped or running; the listener is
	// released on every exit path.
	stateMu    sync.Mutex
	running    bool
	listener   net.Listener
	httpServer *http.Server
	advertiser *discovery.Advertiser
	boundPort  int
	stopCh     chan struct{}
}

// New creates a stopped node. The peer id is generated here, once, so
// the node keeps its identity across address changes within a session.
func New(cfg *config.Config) (*Node, error) {
	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	return &Node{
		cfg:       cfg,
		id:        uuid.NewString(),
		store:     st,
		disc:      discovery.NewClient(cfg.RequestTimeout),
		tracks:    make(map[string]catalog.Track),
		peerTable: make(map[string]*peers.Peer),
	}, nil
}

// ID returns the node's peer id.
func (n *Node) ID() string {
	return n.id
}

// Store exposes the content store for collaborators that only need
// byte access. They must not touch the catalog or peer table directly.
func (n *Node) Store() *store.Store {
	return n.store
}

// Addr returns the bound listen address while running.
func (n *Node) Addr() string {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.listener == nil {
		return n.cfg.ListenAddr
	}
	return n.listener.Addr().String()
}

// Port returns the port peers should dial, once the node is running.
func (n *Node) Port() int {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.boundPort
}

func (n *Node) Running() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.running
}

// SelfDescriptor is the identity announced during handshakes.
func (n *Node) SelfDescriptor() protocol.PeerDescriptor {
	host := n.cfg.AdvertiseHost
	if host == "" {
		if h, _, err := net.SplitHostPort(n.cfg.ListenAddr); err == nil && h != "" {
			host = h
		} else {
			host = "127.0.0.1"
		}
	}
	return protocol.PeerDescriptor{PeerID: n.id, Host: host, Port: n.Port()}
}

// Start binds the service surface and transitions the node to running.
// Any failure along the way releases the listener before returning.
func (n *Node) Start() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if n.running {
		return ErrAlreadyRunning
	}

	if err := n.loadCatalog(); err != nil {
		return fmt.Errorf("rebuilding catalog: %w", err)
	}

	listener, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}

	port := 0
	if _, portStr, err := net.SplitHostPort(listener.Addr().String()); err == nil {
		port, _ = strconv.Atoi(portStr)
	}

	srv := &http.Server{Handler: n.routes()}

	if n.cfg.MDNSEnabled {
		adv := discovery.NewAdvertiser()
		meta := map[string]string{"peer_id": n.id}
		if err := adv.Start("", port, meta); err != nil {
			listener.Close()
			return fmt.Errorf("starting mDNS advertiser: %w", err)
		}
		n.advertiser = adv
	}

	n.listener = listener
	n.httpServer = srv
	n.boundPort = port
	n.running = true
	n.stopCh = make(chan struct{})

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Errorf("[Node] %s: serve error: %v", n.id, err)
		}
	}()

	if n.cfg.PeerTTL > 0 {
		go n.pruneLoop(n.cfg.PeerTTL, n.stopCh)
	}

	logger.Sugar.Infof("[Node] %s listening on %s", n.id, listener.Addr())
	return nil
}

// Stop gracefully releases the service surface. Stopping a stopped
// node reports ErrNotRunning; all non-serving operations stay valid.
func (n *Node) Stop(ctx context.Context) error {
	n.stateMu.Lock()
	if !n.running {
		n.stateMu.Unlock()
		return ErrNotRunning
	}

	close(n.stopCh)
	if n.advertiser != nil {
		n.advertiser.Stop()
		n.advertiser = nil
	}

	srv := n.httpServer
	n.httpServer = nil
	n.listener = nil
	n.boundPort = 0
	n.running = false
	// Shutdown drains in-flight handlers, and those take stateMu for
	// the self descriptor, so it must run outside the lock.
	n.stateMu.Unlock()

	err := srv.Shutdown(ctx)
	logger.Sugar.Infof("[Node] %s stopped", n.id)
	return err
}

// pruneLoop evicts peers that have gone quiet for longer than ttl.
func (n *Node) pruneLoop(ttl time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := n.PruneStalePeers(ttl); removed > 0 {
				logger.Sugar.Infof("[Node] %s pruned %d stale peers", n.id, removed)
			}
		case <-stopCh:
			return
		}
	}
}
