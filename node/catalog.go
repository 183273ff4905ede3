package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"trackmesh/pkg/catalog"
	"trackmesh/pkg/logger"
	"trackmesh/pkg/protocol"
)

const catalogFileName = "catalog.json"

func (n *Node) catalogPath() string {
	return filepath.Join(n.store.Root(), catalogFileName)
}

// saveCatalogLocked persists the catalog in transport form. Callers
// hold tracksMu. Persistence failures are logged, not fatal: the store
// itself remains the source of truth for the bytes.
func (n *Node) saveCatalogLocked() {
	records := make([]protocol.TrackRecord, 0, len(n.tracks))
	for _, t := range n.tracks {
		records = append(records, t.Transport())
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		logger.Sugar.Errorf("[Node] %s: encoding catalog: %v", n.id, err)
		return
	}

	tmp := n.catalogPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Sugar.Errorf("[Node] %s: writing catalog: %v", n.id, err)
		return
	}
	if err := os.Rename(tmp, n.catalogPath()); err != nil {
		logger.Sugar.Errorf("[Node] %s: placing catalog: %v", n.id, err)
	}
}

// loadCatalog rebuilds the in-memory catalog from the persisted track
// records, keeping only entries whose bytes are actually on disk, and
// registers bare records for objects the catalog file missed.
func (n *Node) loadCatalog() error {
	n.tracksMu.Lock()
	defer n.tracksMu.Unlock()

	data, err := os.ReadFile(n.catalogPath())
	switch {
	case err == nil:
		var records []protocol.TrackRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parsing %s: %w", catalogFileName, err)
		}
		for _, rec := range records {
			if rec.Validate() != nil {
				continue
			}
			if n.store.Exists(rec.ContentHash) {
				n.tracks[rec.ContentHash] = catalog.FromTransport(rec)
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// Fresh store, nothing persisted yet.
	default:
		return fmt.Errorf("reading %s: %w", catalogFileName, err)
	}

	hashes, err := n.store.List()
	if err != nil {
		return err
	}
	orphans := 0
	for _, hash := range hashes {
		if _, ok := n.tracks[hash]; ok {
			continue
		}
		data, err := n.store.Get(hash)
		if err != nil {
			return err
		}
		n.tracks[hash] = catalog.Track{Size: int64(len(data)), ContentHash: hash}
		orphans++
	}

	if len(n.tracks) > 0 {
		logger.Sugar.Infof("[Node] %s rebuilt catalog: %d tracks (%d without metadata)", n.id, len(n.tracks), orphans)
	}
	return nil
}
