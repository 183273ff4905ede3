// Package store provides durable, deduplicated byte storage addressed
// solely by content hash.
//
// Objects live under <root>/objects/<hash[0:2]>/<hash>, sharded by the
// first two hex characters of the hash to bound the number of entries
// in any single directory as the catalog grows. Writes land in
// <root>/tmp first and are renamed into place, so a failed Put never
// leaves a partially written object visible to Exists or Get.
//
// The store's directory is owned by exactly one node process;
// cross-process writers are not supported.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"trackmesh/pkg/catalog"
)

var (
	ErrNotFound     = errors.New("content not found in store")
	ErrInvalidHash  = errors.New("invalid content hash")
	ErrHashMismatch = errors.New("content does not match its hash")
)

const (
	objectsDirName = "objects"
	tmpDirName     = "tmp"

	hashHexLen = 64 // sha256
)

type Store struct {
	root string
}

// New creates the store layout under root if needed.
func New(root string) (*Store, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, objectsDirName), 0755); err != nil {
		return nil, fmt.Errorf("creating objects directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0755); err != nil {
		return nil, fmt.Errorf("creating tmp directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Put computes the content hash of data and persists it. Storing bytes
// that already exist is a successful no-op; content addressing
// guarantees identical bytes, so there is nothing to conflict with.
func (s *Store) Put(data []byte) (string, error) {
	hash := catalog.ComputeHash(data)
	if err := s.write(hash, data); err != nil {
		return "", err
	}
	return hash, nil
}

// PutVerified persists data under a caller-supplied hash, verifying the
// bytes actually digest to it first. Used when bytes arrive from a peer
// and must match the address they were requested by.
func (s *Store) PutVerified(hash string, data []byte) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	if got := catalog.ComputeHash(data); got != hash {
		return fmt.Errorf("%w: want %s, got %s", ErrHashMismatch, hash, got)
	}
	return s.write(hash, data)
}

func (s *Store) write(hash string, data []byte) error {
	objectPath := s.objectPath(hash)
	if _, err := os.Stat(objectPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat object %s: %w", hash, err)
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), hash+"-*")
	if err != nil {
		return fmt.Errorf("creating temp object: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp object: %w", err)
	}

	if err := os.Rename(tmpPath, objectPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("placing object %s: %w", hash, err)
	}
	return nil
}

// Get returns the exact bytes previously stored under hash. The bytes
// are never transformed on the way out.
func (s *Store) Get(hash string) ([]byte, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("reading object %s: %w", hash, err)
	}
	return data, nil
}

// Exists reports whether hash is present without reading the payload.
func (s *Store) Exists(hash string) bool {
	if validateHash(hash) != nil {
		return false
	}
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

// List returns the hashes of every object currently on disk. Used to
// rebuild the catalog when a node restarts over an existing store.
func (s *Store) List() ([]string, error) {
	objectsDir := filepath.Join(s.root, objectsDirName)
	shards, err := os.ReadDir(objectsDir)
	if err != nil {
		return nil, fmt.Errorf("reading objects directory: %w", err)
	}

	var hashes []string
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, shard.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading shard %s: %w", shard.Name(), err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if validateHash(entry.Name()) == nil {
				hashes = append(hashes, entry.Name())
			}
		}
	}
	return hashes, nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, objectsDirName, hash[:2], hash)
}

// validateHash rejects anything that is not a lowercase hex sha256
// digest, which also keeps path traversal out of objectPath.
func validateHash(hash string) error {
	if len(hash) != hashHexLen {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
	}
	return nil
}
