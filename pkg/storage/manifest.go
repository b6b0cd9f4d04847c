// pkg/storage/manifest.go
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Manifest describes one striped object: code parameters, chunk geometry and
// per-chunk fingerprints, so any node can verify fetched chunks or
// sub-chunk ranges.
type Manifest struct {
	ObjectID   string `json:"object_id"`
	ObjectSize int    `json:"object_size"`
	ChunkSize  int    `json:"chunk_size"`
	K          int    `json:"k"`
	M          int    `json:"m"`
	D          int    `json:"d"`
	Seed       uint64 `json:"seed"`
	// SubChunkFPs[i][z] fingerprints sub-chunk z of chunk i.
	SubChunkFPs [][]uint64 `json:"sub_chunk_fps"`
	Created     time.Time  `json:"created"`
}

// ManifestStore persists manifests in a bbolt bucket, JSON-encoded.
type ManifestStore struct {
	db     *bolt.DB
	bucket string
}

func NewManifestStore(db *bolt.DB, bucket string) (*ManifestStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create manifest bucket: %w", err)
	}
	return &ManifestStore{db: db, bucket: bucket}, nil
}

func (s *ManifestStore) Put(m *Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest %s: %w", m.ObjectID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.bucket)).Put([]byte(m.ObjectID), raw)
	})
}

func (s *ManifestStore) Get(objectID string) (*Manifest, error) {
	var m Manifest
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(s.bucket)).Get([]byte(objectID))
		if raw == nil {
			return fmt.Errorf("manifest %s not found", objectID)
		}
		return json.Unmarshal(raw, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *ManifestStore) Delete(objectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.bucket)).Delete([]byte(objectID))
	})
}

// Expired returns the object IDs whose manifests are older than ttl.
func (s *ManifestStore) Expired(now time.Time, ttl time.Duration) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.bucket)).ForEach(func(k, v []byte) error {
			var m Manifest
			if json.Unmarshal(v, &m) == nil && now.Sub(m.Created) > ttl {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}
