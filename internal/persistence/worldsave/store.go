// Package worldsave owns the world on disk: the global files describing the
// world (seed, region index, locations), the saved chunks, and the
// background loop that flushes edited chunks.
package worldsave

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voxelhost.ai/internal/persistence/chunkcodec"
	"voxelhost.ai/internal/terrain"
)

var (
	ErrChunkNotFound = errors.New("chunk not saved")
	// ErrNoWorld means at least one global file is missing.
	ErrNoWorld = errors.New("no saved world")
)

// WriteError is a failed chunk write. It is reported and counted but never
// stops the save loop.
type WriteError struct {
	Key terrain.ChunkKey
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("save chunk %s: %v", e.Key, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// ChunkStore persists individual chunks. Implementations must allow a
// load to run concurrently with a save of a different key.
type ChunkStore interface {
	LoadChunk(key terrain.ChunkKey) (*terrain.Chunk, error)
	SaveChunk(key terrain.ChunkKey, c *terrain.Chunk) error
	Close() error
}

// FileStore writes one file per chunk, named "x_y", in Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(key terrain.ChunkKey) string {
	return filepath.Join(s.Dir, key.String())
}

func (s *FileStore) LoadChunk(key terrain.ChunkKey) (*terrain.Chunk, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrChunkNotFound)
	}
	if err != nil {
		return nil, err
	}
	return chunkcodec.DecodeChunk(key, b)
}

func (s *FileStore) SaveChunk(key terrain.ChunkKey, c *terrain.Chunk) error {
	b, err := chunkcodec.EncodeChunk(key, c)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(key), b)
}

func (s *FileStore) Close() error { return nil }

// writeFileAtomic replaces path so readers never see a torn file.
func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
