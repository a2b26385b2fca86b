package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhost.ai/internal/mathx"
)

func flatChunk() *Chunk {
	return NewChunk(Meta{Biome: BiomePlains}, 0, 8, Stone)
}

func TestKeyOf_NegativeCoordinates(t *testing.T) {
	assert.Equal(t, ChunkKey{X: -1, Y: -1}, KeyOf(mathx.Vec3i{X: -1, Y: -32, Z: 5}))
	assert.Equal(t, ChunkKey{X: 0, Y: 1}, KeyOf(mathx.Vec3i{X: 31, Y: 32}))
	assert.Equal(t, ChunkKey{X: -1, Y: 0}, KeyAt(mathx.Vec3{X: -0.5, Y: 0.2}))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("-3_17")
	require.NoError(t, err)
	assert.Equal(t, ChunkKey{X: -3, Y: 17}, k)
	assert.Equal(t, "-3_17", k.String())

	for _, bad := range []string{"", "3", "a_b", "1_2_3"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestStore_InsertTracksNewAndModified(t *testing.T) {
	s := NewStore()
	k := ChunkKey{X: 1, Y: 2}

	assert.Nil(t, s.Insert(k, flatChunk()))
	assert.Contains(t, s.Changes().NewChunks, k)

	s.ClearChanges()
	prev := s.Insert(k, flatChunk())
	assert.NotNil(t, prev)
	assert.Contains(t, s.Changes().ModifiedChunks, k)
	assert.NotContains(t, s.Changes().NewChunks, k)

	_, ok := s.Remove(k)
	require.True(t, ok)
	assert.Contains(t, s.Changes().RemovedChunks, k)
	assert.NotContains(t, s.Changes().ModifiedChunks, k)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ApplyBlockChangesLastWriteWins(t *testing.T) {
	s := NewStore()
	s.Insert(ChunkKey{}, flatChunk())
	s.ClearChanges()

	pos := mathx.Vec3i{X: 3, Y: 4, Z: 5}
	bc := NewBlockChanges()
	bc.Set(pos, Dirt)
	bc.Set(pos, Planks)
	bc.Set(mathx.Vec3i{X: 100, Y: 100, Z: 1}, Dirt) // unloaded chunk

	applied, dropped := s.ApplyBlockChanges(bc)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, bc.Len())

	got, err := s.GetBlock(pos)
	require.NoError(t, err)
	assert.Equal(t, Planks, got)
	assert.Equal(t, map[mathx.Vec3i]Block{pos: Planks}, s.Changes().ModifiedBlocks)

	dirty := s.DrainDirtied()
	require.Len(t, dirty, 1)
	assert.Equal(t, Planks, dirty[ChunkKey{}].Get(pos))
	assert.Nil(t, s.DrainDirtied())

	// The drained copy is independent of the live chunk.
	require.NoError(t, s.SetBlock(pos, Air))
	assert.Equal(t, Planks, dirty[ChunkKey{}].Get(pos))
}

func TestStore_GetBlockUnloaded(t *testing.T) {
	s := NewStore()
	_, err := s.GetBlock(mathx.Vec3i{X: 1})
	assert.ErrorIs(t, err, ErrChunkNotLoaded)
}

func TestChunk_OutsideColumn(t *testing.T) {
	c := NewChunk(Meta{}, 10, 4, Dirt)
	assert.Equal(t, Stone, c.Get(mathx.Vec3i{Z: 9}))
	assert.Equal(t, Air, c.Get(mathx.Vec3i{Z: 14}))
	assert.ErrorIs(t, c.Set(mathx.Vec3i{Z: 14}, Dirt), ErrOutOfBounds)
	assert.Equal(t, 13, c.Surface(0, 0))
}

func TestRecord_RoundTrip(t *testing.T) {
	c := flatChunk()
	c.Meta.Name = "Hollow"
	require.NoError(t, c.Set(mathx.Vec3i{X: 1, Y: 1, Z: 7}, Water))

	rec := c.Record(ChunkKey{X: 4, Y: -2})
	back, err := rec.Chunk()
	require.NoError(t, err)
	assert.Equal(t, c.Digest(), back.Digest())

	rec.Height = 9
	_, err = rec.Chunk()
	assert.Error(t, err)
}

func TestChanges_UpdatedChunksSorted(t *testing.T) {
	s := NewStore()
	s.Insert(ChunkKey{X: 2}, flatChunk())
	s.Insert(ChunkKey{X: -1}, flatChunk())
	s.Insert(ChunkKey{X: -1}, flatChunk())
	assert.Equal(t, []ChunkKey{{X: -1}, {X: 2}}, s.Changes().UpdatedChunks())
}
