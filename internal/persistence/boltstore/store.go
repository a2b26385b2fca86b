// Package boltstore keeps saved chunks in a single bolt database instead of
// one file per chunk.
package boltstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"voxelhost.ai/internal/persistence/chunkcodec"
	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/terrain"
)

var chunkBucket = []byte("chunk")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunkBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) LoadChunk(key terrain.ChunkKey) (*terrain.Chunk, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chunkBucket).Get(encodeKey(key))
		if v != nil {
			// v is only valid inside the transaction.
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", key, worldsave.ErrChunkNotFound)
	}
	return chunkcodec.DecodeChunk(key, raw)
}

func (s *Store) SaveChunk(key terrain.ChunkKey, c *terrain.Chunk) error {
	b, err := chunkcodec.EncodeChunk(key, c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunkBucket).Put(encodeKey(key), b)
	})
}

// Len counts saved chunks.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(chunkBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeKey(k terrain.ChunkKey) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:], uint32(int32(k.X)))
	binary.BigEndian.PutUint32(b[4:], uint32(int32(k.Y)))
	return b
}
