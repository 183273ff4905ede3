package peers

import (
	"testing"
	"time"

	"trackmesh/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContentIdempotent(t *testing.T) {
	p := New("peer-1", "127.0.0.1", 9001)

	p.AddContent("aa11")
	p.AddContent("aa11")
	p.AddContent("bb22")

	assert.Equal(t, 2, p.ContentCount())
	assert.True(t, p.HasContent("aa11"))
	assert.True(t, p.HasContent("bb22"))
	assert.False(t, p.HasContent("cc33"))
}

func TestContentHashesSorted(t *testing.T) {
	p := New("peer-1", "127.0.0.1", 9001)
	p.AddContent("zz")
	p.AddContent("aa")
	p.AddContent("mm")

	assert.Equal(t, []string{"aa", "mm", "zz"}, p.ContentHashes())
}

func TestTouchAdvancesLastSeen(t *testing.T) {
	p := New("peer-1", "127.0.0.1", 9001)
	before := p.LastSeen

	time.Sleep(10 * time.Millisecond)
	p.Touch()

	assert.True(t, p.LastSeen.After(before))
}

func TestDescriptorRoundTrip(t *testing.T) {
	d := protocol.PeerDescriptor{PeerID: "peer-1", Host: "10.0.0.5", Port: 9010}

	p := FromDescriptor(d)
	require.Equal(t, d, p.Descriptor())
	assert.Equal(t, "10.0.0.5:9010", p.Addr())
}

func TestInfoSnapshot(t *testing.T) {
	p := New("peer-1", "127.0.0.1", 9001)
	p.AddContent("aa")

	info := p.Info()
	assert.Equal(t, "peer-1", info.PeerID)
	assert.Equal(t, []string{"aa"}, info.Tracks)
	assert.Equal(t, p.LastSeen.Unix(), info.LastSeen)
}
