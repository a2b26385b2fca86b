package terrain

import (
	"errors"
	"fmt"

	"voxelhost.ai/internal/mathx"
)

var ErrChunkNotLoaded = errors.New("chunk not loaded")

// Store holds the loaded chunks. It is owned by the tick goroutine.
type Store struct {
	chunks  map[ChunkKey]*Chunk
	changes Changes
	dirtied map[ChunkKey]struct{}
}

func NewStore() *Store {
	return &Store{
		chunks:  map[ChunkKey]*Chunk{},
		changes: newChanges(),
		dirtied: map[ChunkKey]struct{}{},
	}
}

func (s *Store) Len() int { return len(s.chunks) }

func (s *Store) Get(key ChunkKey) (*Chunk, bool) {
	c, ok := s.chunks[key]
	return c, ok
}

func (s *Store) Has(key ChunkKey) bool {
	_, ok := s.chunks[key]
	return ok
}

// Keys returns the loaded keys in stable order.
func (s *Store) Keys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Insert stores a chunk and records it as new or modified. It returns the
// chunk it replaced, if any.
func (s *Store) Insert(key ChunkKey, c *Chunk) *Chunk {
	prev, existed := s.chunks[key]
	s.chunks[key] = c
	delete(s.changes.RemovedChunks, key)
	if existed {
		s.changes.ModifiedChunks[key] = struct{}{}
	} else {
		s.changes.NewChunks[key] = struct{}{}
	}
	return prev
}

func (s *Store) Remove(key ChunkKey) (*Chunk, bool) {
	c, ok := s.chunks[key]
	if !ok {
		return nil, false
	}
	delete(s.chunks, key)
	delete(s.changes.NewChunks, key)
	delete(s.changes.ModifiedChunks, key)
	delete(s.dirtied, key)
	s.changes.RemovedChunks[key] = struct{}{}
	return c, true
}

// GetBlock reads a world voxel.
func (s *Store) GetBlock(pos mathx.Vec3i) (Block, error) {
	key := KeyOf(pos)
	c, ok := s.chunks[key]
	if !ok {
		return Air, fmt.Errorf("%w: %s", ErrChunkNotLoaded, key)
	}
	return c.Get(local(key, pos)), nil
}

// SetBlock writes a world voxel and marks its chunk dirty for saving.
// Clients learn about it through ModifiedBlocks.
func (s *Store) SetBlock(pos mathx.Vec3i, b Block) error {
	key := KeyOf(pos)
	c, ok := s.chunks[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChunkNotLoaded, key)
	}
	if err := c.Set(local(key, pos), b); err != nil {
		return err
	}
	s.changes.ModifiedBlocks[pos] = b
	s.dirtied[key] = struct{}{}
	return nil
}

// ApplyBlockChanges drains the edit buffer into the store. Edits that fall
// on unloaded chunks or outside a column are dropped and counted.
func (s *Store) ApplyBlockChanges(bc *BlockChanges) (applied, dropped int) {
	for pos, b := range bc.drain() {
		if err := s.SetBlock(pos, b); err != nil {
			dropped++
			continue
		}
		applied++
	}
	return applied, dropped
}

// Changes exposes the current tick's delta. The caller must not keep it
// past ClearChanges.
func (s *Store) Changes() *Changes { return &s.changes }

func (s *Store) ClearChanges() { s.changes = newChanges() }

// DrainDirtied returns the chunks edited since the last call with a clone
// of each, ready for the save buffer.
func (s *Store) DrainDirtied() map[ChunkKey]*Chunk {
	if len(s.dirtied) == 0 {
		return nil
	}
	out := make(map[ChunkKey]*Chunk, len(s.dirtied))
	for k := range s.dirtied {
		if c, ok := s.chunks[k]; ok {
			out[k] = c.Clone()
		}
	}
	s.dirtied = map[ChunkKey]struct{}{}
	return out
}

func local(key ChunkKey, pos mathx.Vec3i) mathx.Vec3i {
	o := key.Origin()
	return mathx.Vec3i{X: pos.X - o.X, Y: pos.Y - o.Y, Z: pos.Z}
}
