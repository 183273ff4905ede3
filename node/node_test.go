package node

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"trackmesh/pkg/catalog"
	"trackmesh/pkg/config"
	"trackmesh/pkg/peers"
	"trackmesh/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:     "127.0.0.1:0",
		AdvertiseHost:  "127.0.0.1",
		DataDir:        t.TempDir(),
		RequestTimeout: 2 * time.Second,
	}
}

func startTestNode(t *testing.T, cfg *config.Config) *Node {
	t.Helper()
	n, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = n.Stop(ctx)
	})
	return n
}

func TestLifecycle(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	assert.False(t, n.Running())

	require.NoError(t, n.Start())
	assert.True(t, n.Running())
	assert.NotZero(t, n.Port())

	assert.ErrorIs(t, n.Start(), ErrAlreadyRunning)

	ctx := context.Background()
	require.NoError(t, n.Stop(ctx))
	assert.False(t, n.Running())
	assert.ErrorIs(t, n.Stop(ctx), ErrNotRunning)

	// stopped -> running again works, and the port may change
	require.NoError(t, n.Start())
	assert.True(t, n.Running())
	require.NoError(t, n.Stop(ctx))
}

func TestAddContentIdempotent(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	data := []byte("abc")
	first, err := n.AddContent(data, catalog.TrackMeta{Title: "Original"})
	require.NoError(t, err)

	second, err := n.AddContent(data, catalog.TrackMeta{Title: "Renamed"})
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-adding identical bytes returns the existing record")
	assert.Len(t, n.Tracks(), 1)
	assert.True(t, n.Store().Exists(first.ContentHash))
}

// Fresh-node round trip: A serves content, B discovers A, then fetches
// the bytes through A's content endpoint.
func TestFreshNodeRoundTrip(t *testing.T) {
	nodeA := startTestNode(t, testConfig(t))
	nodeB := startTestNode(t, testConfig(t))

	track, err := nodeA.AddContent([]byte("abc"), catalog.TrackMeta{Title: "Demo", Artist: "Tester"})
	require.NoError(t, err)

	peer, err := nodeB.ConnectToPeer(context.Background(), "127.0.0.1", nodeA.Port())
	require.NoError(t, err)
	assert.Equal(t, nodeA.ID(), peer.ID)
	assert.Equal(t, []string{track.ContentHash}, peer.ContentHashes())

	infos := nodeB.Peers()
	require.Len(t, infos, 1)
	assert.Equal(t, nodeA.ID(), infos[0].PeerID)

	data, err := nodeB.Fetch(context.Background(), track.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	// Fetched content is now served locally, metadata included.
	loc, err := nodeB.FindContent(track.ContentHash)
	require.NoError(t, err)
	assert.True(t, loc.Local)

	tracks := nodeB.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "Demo", tracks[0].Title)
}

func TestInboundDiscoveryIsSymmetric(t *testing.T) {
	nodeA := startTestNode(t, testConfig(t))
	nodeB := startTestNode(t, testConfig(t))

	track, err := nodeB.AddContent([]byte("b side"), catalog.TrackMeta{Title: "B Side"})
	require.NoError(t, err)

	_, err = nodeB.ConnectToPeer(context.Background(), "127.0.0.1", nodeA.Port())
	require.NoError(t, err)

	// A learned about B, including B's announced catalog, from the
	// single round trip.
	infos := nodeA.Peers()
	require.Len(t, infos, 1)
	assert.Equal(t, nodeB.ID(), infos[0].PeerID)
	assert.Equal(t, []string{track.ContentHash}, infos[0].Tracks)
}

func TestReconnectOverwritesPeerEntry(t *testing.T) {
	nodeA := startTestNode(t, testConfig(t))
	nodeB := startTestNode(t, testConfig(t))

	_, err := nodeB.ConnectToPeer(context.Background(), "127.0.0.1", nodeA.Port())
	require.NoError(t, err)
	_, err = nodeB.ConnectToPeer(context.Background(), "127.0.0.1", nodeA.Port())
	require.NoError(t, err)

	assert.Len(t, nodeB.Peers(), 1, "duplicate handshakes with one peer must not duplicate entries")
}

func TestFailedDiscoveryLeavesStateUntouched(t *testing.T) {
	n := startTestNode(t, testConfig(t))

	// Grab a free port, then close it so the handshake is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	require.NoError(t, l.Close())

	peer, err := n.ConnectToPeer(context.Background(), "127.0.0.1", port)
	assert.Error(t, err)
	assert.Nil(t, peer)
	assert.Empty(t, n.Peers())
}

func TestFindContentPrefersFreshestPeer(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	hash := catalog.ComputeHash([]byte("contested content"))

	stale := peers.New("stale-peer", "127.0.0.1", 9101)
	stale.AddContent(hash)
	stale.LastSeen = time.Now().Add(-time.Hour)

	fresh := peers.New("fresh-peer", "127.0.0.1", 9102)
	fresh.AddContent(hash)

	n.peerTable[stale.ID] = stale
	n.peerTable[fresh.ID] = fresh

	loc, err := n.FindContent(hash)
	require.NoError(t, err)
	assert.False(t, loc.Local)
	assert.Equal(t, "fresh-peer", loc.PeerID)
}

func TestFindContentNotFound(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = n.FindContent(catalog.ComputeHash([]byte("nowhere")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchVerifiesContentAddress(t *testing.T) {
	// A peer that advertises a hash but serves different bytes.
	liar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not what was promised"))
	}))
	defer liar.Close()

	n, err := New(testConfig(t))
	require.NoError(t, err)

	hash := catalog.ComputeHash([]byte("the real bytes"))
	host, portStr, err := net.SplitHostPort(liar.Listener.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	p := peers.New("lying-peer", host, port)
	p.AddContent(hash)
	n.peerTable[p.ID] = p

	_, err = n.FetchFromPeer(context.Background(), p.ID, hash)
	assert.Error(t, err)
	assert.False(t, n.Store().Exists(hash), "unverified bytes must never land in the store")
}

func TestServiceEndpoints(t *testing.T) {
	n := startTestNode(t, testConfig(t))
	base := "http://" + n.Addr()

	track, err := n.AddContent([]byte("endpoint bytes"), catalog.TrackMeta{Title: "Endpoint"})
	require.NoError(t, err)

	t.Run("Ping", func(t *testing.T) {
		resp, err := http.Get(base + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var ping protocol.PingResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ping))
		assert.Equal(t, "ok", ping.Status)
		assert.Equal(t, n.ID(), ping.PeerID)
	})

	t.Run("Tracks", func(t *testing.T) {
		resp, err := http.Get(base + "/tracks")
		require.NoError(t, err)
		defer resp.Body.Close()

		var records []protocol.TrackRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		require.Len(t, records, 1)
		assert.Equal(t, track.Transport(), records[0])
	})

	t.Run("PeersEmpty", func(t *testing.T) {
		resp, err := http.Get(base + "/peers")
		require.NoError(t, err)
		defer resp.Body.Close()

		var infos []protocol.PeerInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
		assert.Empty(t, infos)
	})

	t.Run("Content", func(t *testing.T) {
		resp, err := http.Get(base + "/content/" + track.ContentHash)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("endpoint bytes"), data)
	})

	t.Run("ContentMissing", func(t *testing.T) {
		missing := catalog.ComputeHash([]byte("missing"))
		resp, err := http.Get(base + "/content/" + missing)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("DiscoverMalformed", func(t *testing.T) {
		resp, err := http.Post(base+"/discover", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, n.Peers(), "a malformed handshake must not pollute the peer table")
	})
}

func TestPruneStalePeers(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	stale := peers.New("stale-peer", "127.0.0.1", 9101)
	stale.LastSeen = time.Now().Add(-time.Hour)
	fresh := peers.New("fresh-peer", "127.0.0.1", 9102)

	n.peerTable[stale.ID] = stale
	n.peerTable[fresh.ID] = fresh

	removed := n.PruneStalePeers(10 * time.Minute)
	assert.Equal(t, 1, removed)

	infos := n.Peers()
	require.Len(t, infos, 1)
	assert.Equal(t, "fresh-peer", infos[0].PeerID)
}

func TestCatalogSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	first := startTestNode(t, cfg)
	track, err := first.AddContent([]byte("persistent bytes"), catalog.TrackMeta{Title: "Keeper", Artist: "Archivist"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Stop(ctx))

	// A new node process over the same data directory.
	second, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, second.Start())
	defer second.Stop(ctx)

	tracks := second.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, track, tracks[0], "catalog metadata must survive a restart")

	loc, err := second.FindContent(track.ContentHash)
	require.NoError(t, err)
	assert.True(t, loc.Local)
}
