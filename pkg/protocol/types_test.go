package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    PeerDescriptor
		wantErr bool
	}{
		{"Valid", PeerDescriptor{PeerID: "p1", Host: "127.0.0.1", Port: 9001}, false},
		{"EmptyPeerID", PeerDescriptor{Host: "127.0.0.1", Port: 9001}, true},
		{"EmptyHost", PeerDescriptor{PeerID: "p1", Port: 9001}, true},
		{"ZeroPort", PeerDescriptor{PeerID: "p1", Host: "127.0.0.1"}, true},
		{"PortOutOfRange", PeerDescriptor{PeerID: "p1", Host: "127.0.0.1", Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDiscoverRequestDecode(t *testing.T) {
	raw := `{"peer":{"peer_id":"p1","host":"127.0.0.1","port":9001},"tracks":["aa","bb"]}`

	var req DiscoverRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.NoError(t, req.Validate())
	assert.Equal(t, "p1", req.Peer.PeerID)
	assert.Equal(t, []string{"aa", "bb"}, req.Tracks)
}

func TestDiscoverResponseRejectsMissingPeer(t *testing.T) {
	var resp DiscoverResponse
	require.NoError(t, json.Unmarshal([]byte(`{"tracks":["aa"]}`), &resp))
	assert.ErrorIs(t, resp.Validate(), ErrInvalidMessage)
}

func TestTrackRecordValidate(t *testing.T) {
	assert.ErrorIs(t, TrackRecord{Title: "No Address"}.Validate(), ErrInvalidMessage)
	assert.NoError(t, TrackRecord{ContentHash: "aa"}.Validate())
}
