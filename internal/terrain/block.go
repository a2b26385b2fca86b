package terrain

import "fmt"

// Block is a palette id. Zero is air.
type Block uint16

const (
	Air Block = iota
	Stone
	Dirt
	Grass
	Sand
	Water
	Log
	Leaves
	Snow
	Gravel
	Planks

	blockCount
)

var blockNames = [...]string{
	Air:    "AIR",
	Stone:  "STONE",
	Dirt:   "DIRT",
	Grass:  "GRASS",
	Sand:   "SAND",
	Water:  "WATER",
	Log:    "LOG",
	Leaves: "LEAVES",
	Snow:   "SNOW",
	Gravel: "GRAVEL",
	Planks: "PLANKS",
}

func (b Block) String() string {
	if b < blockCount {
		return blockNames[b]
	}
	return fmt.Sprintf("BLOCK(%d)", uint16(b))
}

func (b Block) Valid() bool { return b < blockCount }

func (b Block) IsAir() bool { return b == Air }

// IsSolid reports whether entities can stand on the block.
func (b Block) IsSolid() bool { return b != Air && b != Water }

type Biome string

const (
	BiomePlains   Biome = "PLAINS"
	BiomeForest   Biome = "FOREST"
	BiomeDesert   Biome = "DESERT"
	BiomeMountain Biome = "MOUNTAIN"
	BiomeOcean    Biome = "OCEAN"
	BiomeSnow     Biome = "SNOW"
)

// Meta is descriptive chunk data that travels with the voxels.
type Meta struct {
	Name  string `json:"name,omitempty"`
	Biome Biome  `json:"biome"`
}
