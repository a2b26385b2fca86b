package terrain

import (
	"sort"

	"voxelhost.ai/internal/mathx"
)

// Changes is the per-tick terrain delta. It is filled while the tick runs,
// read once by persistence marking and client broadcast, then cleared.
type Changes struct {
	NewChunks      map[ChunkKey]struct{}
	ModifiedChunks map[ChunkKey]struct{}
	RemovedChunks  map[ChunkKey]struct{}
	ModifiedBlocks map[mathx.Vec3i]Block
}

func newChanges() Changes {
	return Changes{
		NewChunks:      map[ChunkKey]struct{}{},
		ModifiedChunks: map[ChunkKey]struct{}{},
		RemovedChunks:  map[ChunkKey]struct{}{},
		ModifiedBlocks: map[mathx.Vec3i]Block{},
	}
}

func (c *Changes) Empty() bool {
	return len(c.NewChunks) == 0 && len(c.ModifiedChunks) == 0 && len(c.RemovedChunks) == 0 && len(c.ModifiedBlocks) == 0
}

// UpdatedChunks lists new and modified chunks in key order.
func (c *Changes) UpdatedChunks() []ChunkKey {
	out := make([]ChunkKey, 0, len(c.NewChunks)+len(c.ModifiedChunks))
	for k := range c.NewChunks {
		out = append(out, k)
	}
	for k := range c.ModifiedChunks {
		if _, dup := c.NewChunks[k]; !dup {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

// BlockUpdate is one coalesced voxel edit.
type BlockUpdate struct {
	Pos   mathx.Vec3i `json:"pos"`
	Block Block       `json:"block"`
}

// SortedBlocks returns ModifiedBlocks ordered by z, y, x.
func (c *Changes) SortedBlocks() []BlockUpdate {
	out := make([]BlockUpdate, 0, len(c.ModifiedBlocks))
	for p, b := range c.ModifiedBlocks {
		out = append(out, BlockUpdate{Pos: p, Block: b})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

// BlockChanges buffers edits requested during message handling. Later
// writes to the same voxel replace earlier ones.
type BlockChanges struct {
	blocks map[mathx.Vec3i]Block
}

func NewBlockChanges() *BlockChanges {
	return &BlockChanges{blocks: map[mathx.Vec3i]Block{}}
}

func (bc *BlockChanges) Set(pos mathx.Vec3i, b Block) { bc.blocks[pos] = b }

func (bc *BlockChanges) Len() int { return len(bc.blocks) }

func (bc *BlockChanges) Get(pos mathx.Vec3i) (Block, bool) {
	b, ok := bc.blocks[pos]
	return b, ok
}

func (bc *BlockChanges) drain() map[mathx.Vec3i]Block {
	out := bc.blocks
	bc.blocks = map[mathx.Vec3i]Block{}
	return out
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
}
