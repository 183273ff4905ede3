// Package catalog holds the immutable record describing one stored
// track: descriptive metadata plus the content address of its bytes.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"

	"trackmesh/pkg/protocol"
)

// TrackMeta is the caller-supplied description of a track. All fields
// are arbitrary at ingest time; none of them influence the content hash.
type TrackMeta struct {
	Title        string
	Artist       string
	Album        string
	DurationSecs int
}

// Track describes one piece of content. Constructed once when content
// is ingested and never mutated afterwards.
type Track struct {
	Title        string
	Artist       string
	Album        string
	DurationSecs int
	Size         int64
	ContentHash  string
}

// ComputeHash returns the hex SHA-256 digest of data. The digest is the
// content address: byte-identical payloads always map to the same hash
// regardless of metadata, which is what makes deduplication work.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewTrack builds a record for data, filling Size and ContentHash from
// the bytes themselves.
func NewTrack(meta TrackMeta, data []byte) Track {
	return Track{
		Title:        meta.Title,
		Artist:       meta.Artist,
		Album:        meta.Album,
		DurationSecs: meta.DurationSecs,
		Size:         int64(len(data)),
		ContentHash:  ComputeHash(data),
	}
}

// Transport returns the wire form of the record.
func (t Track) Transport() protocol.TrackRecord {
	return protocol.TrackRecord{
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		DurationSecs: t.DurationSecs,
		Size:         t.Size,
		ContentHash:  t.ContentHash,
	}
}

// FromTransport rebuilds a record from its wire form. Round trip is
// lossless for every field.
func FromTransport(rec protocol.TrackRecord) Track {
	return Track{
		Title:        rec.Title,
		Artist:       rec.Artist,
		Album:        rec.Album,
		DurationSecs: rec.DurationSecs,
		Size:         rec.Size,
		ContentHash:  rec.ContentHash,
	}
}
