package worldgen

import (
	"math"

	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/terrain"
)

const (
	// WorldChunks is the edge length of the playable world in chunks.
	WorldChunks = 1024
	// RegionChunks is the edge length of one summary cell in chunks.
	RegionChunks = 16
	RegionGrid   = WorldChunks / RegionChunks

	SeaLevel = 60
)

// Region is the coarse per-cell summary the chunk index stores.
type Region struct {
	Alt   float32       `json:"alt"`
	Temp  float32       `json:"temp"`
	Biome terrain.Biome `json:"biome"`
}

// Location is a named place. Chunks near it carry its name.
type Location struct {
	Name   string        `json:"name"`
	Center mathx.Vec2i   `json:"center"`
	Radius int           `json:"radius"`
	Biome  terrain.Biome `json:"biome"`
}

// Sim is the world-scale state generation reads from: the seed, the region
// index and the named locations. Generation only reads it, so a Sim is safe
// to share with worker goroutines once built.
type Sim struct {
	Seed      uint32
	Regions   []Region
	Locations []Location

	elapsed float64
}

// NewSim builds a world from scratch.
func NewSim(seed uint32) *Sim {
	s := &Sim{Seed: seed, Regions: make([]Region, RegionGrid*RegionGrid)}
	for ry := 0; ry < RegionGrid; ry++ {
		for rx := 0; rx < RegionGrid; rx++ {
			s.Regions[ry*RegionGrid+rx] = s.summarize(rx, ry)
		}
	}
	s.Locations = s.placeLocations(24)
	return s
}

func (s *Sim) summarize(rx, ry int) Region {
	// Two octaves of value noise keep neighbouring regions related.
	alt := 0.65*valueNoise(s.Seed, float64(rx)/8, float64(ry)/8) + 0.35*valueNoise(s.Seed+1, float64(rx)/3, float64(ry)/3)
	temp := valueNoise(s.Seed+2, float64(rx)/12, float64(ry)/12)
	r := Region{Alt: float32(30 + alt*110), Temp: float32(temp)}
	switch {
	case r.Alt < SeaLevel-6:
		r.Biome = terrain.BiomeOcean
	case r.Alt > 115 && temp < 0.4:
		r.Biome = terrain.BiomeSnow
	case r.Alt > 105:
		r.Biome = terrain.BiomeMountain
	case temp > 0.7:
		r.Biome = terrain.BiomeDesert
	case temp > 0.4:
		r.Biome = terrain.BiomeForest
	default:
		r.Biome = terrain.BiomePlains
	}
	return r
}

func (s *Sim) placeLocations(n int) []Location {
	out := make([]Location, 0, n)
	for i := 0; len(out) < n && i < n*8; i++ {
		h := mathx.Hash2(s.Seed+7, i, 0)
		c := mathx.Vec2i{X: int(h % WorldChunks), Y: int((h >> 20) % WorldChunks)}
		reg := s.RegionAt(terrain.ChunkKey{X: c.X, Y: c.Y})
		if reg.Biome == terrain.BiomeOcean {
			continue
		}
		out = append(out, Location{
			Name:   locationName(mathx.Hash2(s.Seed+8, i, 1)),
			Center: c,
			Radius: 4 + int(h>>40)%8,
			Biome:  reg.Biome,
		})
	}
	return out
}

// RegionAt returns the summary for the region containing a chunk. Chunks
// outside the world clamp to the border.
func (s *Sim) RegionAt(key terrain.ChunkKey) Region {
	rx := mathx.ClampInt(mathx.FloorDiv(key.X, RegionChunks), 0, RegionGrid-1)
	ry := mathx.ClampInt(mathx.FloorDiv(key.Y, RegionChunks), 0, RegionGrid-1)
	return s.Regions[ry*RegionGrid+rx]
}

// AltAt interpolates the region altitudes at a world column.
func (s *Sim) AltAt(wx, wy int) float64 {
	const cell = RegionChunks * terrain.ChunkSize
	fx := float64(wx)/cell - 0.5
	fy := float64(wy)/cell - 0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)
	at := func(x, y int) float64 {
		x = mathx.ClampInt(x, 0, RegionGrid-1)
		y = mathx.ClampInt(y, 0, RegionGrid-1)
		return float64(s.Regions[y*RegionGrid+x].Alt)
	}
	a := lerp(at(x0, y0), at(x0+1, y0), smooth(tx))
	b := lerp(at(x0, y0+1), at(x0+1, y0+1), smooth(tx))
	return lerp(a, b, smooth(ty))
}

// LocationNear returns the location whose radius covers the chunk.
func (s *Sim) LocationNear(key terrain.ChunkKey) (Location, bool) {
	for _, l := range s.Locations {
		dx, dy := key.X-l.Center.X, key.Y-l.Center.Y
		if dx*dx+dy*dy <= l.Radius*l.Radius {
			return l, true
		}
	}
	return Location{}, false
}

// Tick advances world-scale simulation. Regions are static for now; only
// the elapsed time moves.
func (s *Sim) Tick(dt float64) { s.elapsed += dt }

func (s *Sim) Elapsed() float64 { return s.elapsed }

func valueNoise(seed uint32, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	tx, ty := smooth(x-float64(x0)), smooth(y-float64(y0))
	v := func(ix, iy int) float64 { return mathx.Unit(mathx.Hash2(seed, ix, iy)) }
	a := lerp(v(x0, y0), v(x0+1, y0), tx)
	b := lerp(v(x0, y0+1), v(x0+1, y0+1), tx)
	return lerp(a, b, ty)
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

var (
	nameHeads = []string{"Ash", "Bram", "Cor", "Dun", "El", "Fen", "Gal", "Hol", "Ir", "Kel", "Mor", "Ost", "Rav", "Sel", "Thal", "Vey"}
	nameTails = []string{"wick", "ford", "mere", "holt", "stead", "crag", "dale", "moor", "haven", "reach"}
)

func locationName(h uint64) string {
	return nameHeads[h%uint64(len(nameHeads))] + nameTails[(h>>16)%uint64(len(nameTails))]
}
