// Package interest decides which chunks and entities a client should be
// kept in sync with.
package interest

import (
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/terrain"
)

// Slack is subtracted from each axis distance so a client straddling a
// chunk border does not flicker between two views.
const Slack = 2

// ChunkInView reports whether key is within vd chunks of center.
func ChunkInView(center, key terrain.ChunkKey, vd uint32) bool {
	dx := max(0, mathx.AbsInt(center.X-key.X)-Slack)
	dy := max(0, mathx.AbsInt(center.Y-key.Y)-Slack)
	r := int64(vd)
	return int64(dx)*int64(dx)+int64(dy)*int64(dy) <= r*r
}

// EntityInView applies the chunk test to the chunks of both positions.
func EntityInView(viewer, target mathx.Vec3, vd uint32) bool {
	return ChunkInView(terrain.KeyAt(viewer), terrain.KeyAt(target), vd)
}

// WantedChunks lists every key in view of center, nearest first.
func WantedChunks(center terrain.ChunkKey, vd uint32) []terrain.ChunkKey {
	r := int(vd) + Slack
	var out []terrain.ChunkKey
	for ring := 0; ring <= r; ring++ {
		for y := -ring; y <= ring; y++ {
			for x := -ring; x <= ring; x++ {
				if max(mathx.AbsInt(x), mathx.AbsInt(y)) != ring {
					continue
				}
				k := terrain.ChunkKey{X: center.X + x, Y: center.Y + y}
				if ChunkInView(center, k, vd) {
					out = append(out, k)
				}
			}
		}
	}
	return out
}
