package terrain

import (
	"fmt"
	"strconv"
	"strings"

	"voxelhost.ai/internal/mathx"
)

// ChunkSize is the horizontal edge length of a chunk in voxels.
const ChunkSize = 32

// ChunkKey addresses a chunk column on the horizontal grid.
type ChunkKey struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (k ChunkKey) String() string { return fmt.Sprintf("%d_%d", k.X, k.Y) }

// Origin is the world voxel of the chunk's (0,0) column at z=0.
func (k ChunkKey) Origin() mathx.Vec3i {
	return mathx.Vec3i{X: k.X * ChunkSize, Y: k.Y * ChunkSize}
}

// KeyOf returns the chunk holding a voxel.
func KeyOf(pos mathx.Vec3i) ChunkKey {
	return ChunkKey{X: mathx.FloorDiv(pos.X, ChunkSize), Y: mathx.FloorDiv(pos.Y, ChunkSize)}
}

// KeyAt returns the chunk holding a continuous position.
func KeyAt(pos mathx.Vec3) ChunkKey { return KeyOf(pos.Floor()) }

// ParseKey reads the "x_y" form used for chunk file names.
func ParseKey(s string) (ChunkKey, error) {
	xs, ys, ok := strings.Cut(s, "_")
	if !ok {
		return ChunkKey{}, fmt.Errorf("chunk key %q: missing separator", s)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return ChunkKey{}, fmt.Errorf("chunk key %q: %w", s, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return ChunkKey{}, fmt.Errorf("chunk key %q: %w", s, err)
	}
	return ChunkKey{X: x, Y: y}, nil
}

func Less(a, b ChunkKey) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
