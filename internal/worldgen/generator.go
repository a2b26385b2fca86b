package worldgen

import (
	"math"

	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/terrain"
)

// NPCKind selects the body of a spawned NPC.
type NPCKind string

const (
	NPCHumanoid NPCKind = "humanoid"
	NPCWolf     NPCKind = "wolf"
)

// NPCSpawn is a placement hint returned alongside a chunk.
type NPCSpawn struct {
	Pos  mathx.Vec3
	Kind NPCKind
	Boss bool
}

// Supplement carries what generation produced besides voxels.
type Supplement struct {
	NPCs []NPCSpawn
}

// Generator produces chunk content. Implementations must be safe for
// concurrent use; calls may be slow.
type Generator interface {
	GenerateChunk(key terrain.ChunkKey) (*terrain.Chunk, Supplement)
}

// GenerateChunk builds a chunk from the region index. The same seed and key
// always give the same chunk.
func (s *Sim) GenerateChunk(key terrain.ChunkKey) (*terrain.Chunk, Supplement) {
	o := key.Origin()
	var alts [terrain.ChunkSize * terrain.ChunkSize]int
	lo, hi := math.MaxInt, math.MinInt
	for y := 0; y < terrain.ChunkSize; y++ {
		for x := 0; x < terrain.ChunkSize; x++ {
			wx, wy := o.X+x, o.Y+y
			jitter := int(mathx.Hash2(s.Seed+11, wx, wy)%3) - 1
			a := int(s.AltAt(wx, wy)) + jitter
			alts[y*terrain.ChunkSize+x] = a
			lo, hi = min(lo, a), max(hi, a)
		}
	}
	hi = max(hi, SeaLevel)

	reg := s.RegionAt(key)
	meta := terrain.Meta{Biome: reg.Biome}
	if l, ok := s.LocationNear(key); ok {
		meta.Name = l.Name
	}

	minZ := lo - 8
	c := terrain.NewChunk(meta, minZ, hi-minZ+12, terrain.Air)
	for y := 0; y < terrain.ChunkSize; y++ {
		for x := 0; x < terrain.ChunkSize; x++ {
			alt := alts[y*terrain.ChunkSize+x]
			for z := minZ; z <= max(alt, SeaLevel); z++ {
				_ = c.Set(mathx.Vec3i{X: x, Y: y, Z: z}, columnBlock(reg.Biome, z, alt))
			}
			if reg.Biome == terrain.BiomeForest && alt > SeaLevel && mathx.Hash2(s.Seed+12, o.X+x, o.Y+y)%97 == 0 {
				s.plantTree(c, x, y, alt+1)
			}
		}
	}

	return c, s.supplement(key, c)
}

func columnBlock(b terrain.Biome, z, alt int) terrain.Block {
	switch {
	case z > alt:
		return terrain.Water
	case z < alt-3:
		return terrain.Stone
	case b == terrain.BiomeDesert || (z <= SeaLevel+1 && b != terrain.BiomeSnow):
		return terrain.Sand
	case b == terrain.BiomeSnow && z == alt:
		return terrain.Snow
	case b == terrain.BiomeMountain:
		return terrain.Stone
	case z == alt:
		return terrain.Grass
	default:
		return terrain.Dirt
	}
}

func (s *Sim) plantTree(c *terrain.Chunk, x, y, base int) {
	if x < 2 || y < 2 || x > terrain.ChunkSize-3 || y > terrain.ChunkSize-3 {
		return
	}
	for z := base; z < base+5; z++ {
		_ = c.Set(mathx.Vec3i{X: x, Y: y, Z: z}, terrain.Log)
	}
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			for z := base + 3; z < base+7; z++ {
				p := mathx.Vec3i{X: x + dx, Y: y + dy, Z: z}
				if c.Get(p) == terrain.Air {
					_ = c.Set(p, terrain.Leaves)
				}
			}
		}
	}
}

func (s *Sim) supplement(key terrain.ChunkKey, c *terrain.Chunk) Supplement {
	var sup Supplement
	h := mathx.Hash2(s.Seed+21, key.X, key.Y)
	if h%24 != 0 {
		return sup
	}
	x, y := int(h>>8)%terrain.ChunkSize, int(h>>16)%terrain.ChunkSize
	z := c.Surface(x, y)
	if z < SeaLevel {
		return sup
	}
	o := key.Origin()
	spawn := NPCSpawn{
		Pos:  mathx.Vec3i{X: o.X + x, Y: o.Y + y, Z: z + 1}.Center(),
		Kind: NPCHumanoid,
		Boss: (h>>24)%20 == 0,
	}
	if (h>>32)%4 == 0 {
		spawn.Kind = NPCWolf
	}
	sup.NPCs = append(sup.NPCs, spawn)
	return sup
}
