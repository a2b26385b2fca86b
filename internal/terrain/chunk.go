package terrain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"voxelhost.ai/internal/encoding"
	"voxelhost.ai/internal/mathx"
)

var ErrOutOfBounds = errors.New("block out of chunk bounds")

// Chunk is a ChunkSize x ChunkSize column of Height layers starting at MinZ.
// Reads above the column are air, reads below are stone.
type Chunk struct {
	Meta   Meta
	MinZ   int
	Height int

	blocks []Block
}

func NewChunk(meta Meta, minZ, height int, fill Block) *Chunk {
	if height < 0 {
		height = 0
	}
	c := &Chunk{Meta: meta, MinZ: minZ, Height: height, blocks: make([]Block, ChunkSize*ChunkSize*height)}
	if fill != Air {
		for i := range c.blocks {
			c.blocks[i] = fill
		}
	}
	return c
}

func (c *Chunk) index(x, y, z int) (int, bool) {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize {
		return 0, false
	}
	dz := z - c.MinZ
	if dz < 0 || dz >= c.Height {
		return 0, false
	}
	return (dz*ChunkSize+y)*ChunkSize + x, true
}

// Get reads a block at chunk-local x,y and world z.
func (c *Chunk) Get(local mathx.Vec3i) Block {
	if i, ok := c.index(local.X, local.Y, local.Z); ok {
		return c.blocks[i]
	}
	if local.Z < c.MinZ {
		return Stone
	}
	return Air
}

func (c *Chunk) Set(local mathx.Vec3i, b Block) error {
	i, ok := c.index(local.X, local.Y, local.Z)
	if !ok {
		return fmt.Errorf("%w: %+v", ErrOutOfBounds, local)
	}
	c.blocks[i] = b
	return nil
}

// Surface returns the z of the topmost solid block in a column, or MinZ-1.
func (c *Chunk) Surface(x, y int) int {
	for z := c.MinZ + c.Height - 1; z >= c.MinZ; z-- {
		if c.Get(mathx.Vec3i{X: x, Y: y, Z: z}).IsSolid() {
			return z
		}
	}
	return c.MinZ - 1
}

func (c *Chunk) Clone() *Chunk {
	cp := *c
	cp.blocks = append([]Block(nil), c.blocks...)
	return &cp
}

// Digest hashes the full chunk content.
func (c *Chunk) Digest() uint64 {
	d := xxhash.New()
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(int64(c.MinZ)))
	binary.LittleEndian.PutUint64(hdr[8:], uint64(int64(c.Height)))
	_, _ = d.Write(hdr[:])
	_, _ = d.WriteString(c.Meta.Name)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(c.Meta.Biome))
	var b [2]byte
	for _, v := range c.blocks {
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		_, _ = d.Write(b[:])
	}
	return d.Sum64()
}

func (c *Chunk) ids() []uint16 {
	out := make([]uint16, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = uint16(b)
	}
	return out
}

// Record is the serialisable form of a chunk, shared by the wire protocol
// and on-disk storage.
type Record struct {
	Key    ChunkKey `json:"key"`
	Meta   Meta     `json:"meta"`
	MinZ   int      `json:"min_z"`
	Height int      `json:"height"`
	Blocks string   `json:"blocks_rle"`
}

func (c *Chunk) Record(key ChunkKey) Record {
	return Record{Key: key, Meta: c.Meta, MinZ: c.MinZ, Height: c.Height, Blocks: encoding.EncodeRLE(c.ids())}
}

// Chunk decodes a record, validating the voxel count and palette.
func (r Record) Chunk() (*Chunk, error) {
	if r.Height < 0 || r.Height > 4096 {
		return nil, fmt.Errorf("chunk %s: bad height %d", r.Key, r.Height)
	}
	ids, err := encoding.DecodeRLE(r.Blocks, ChunkSize*ChunkSize*r.Height)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", r.Key, err)
	}
	c := &Chunk{Meta: r.Meta, MinZ: r.MinZ, Height: r.Height, blocks: make([]Block, len(ids))}
	for i, id := range ids {
		b := Block(id)
		if !b.Valid() {
			return nil, fmt.Errorf("chunk %s: unknown block %d", r.Key, id)
		}
		c.blocks[i] = b
	}
	return c, nil
}
