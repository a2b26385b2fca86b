package server

import (
	"go.uber.org/zap"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/server/interest"
	"voxelhost.ai/internal/terrain"
)

type viewer struct {
	id     entity.ID
	center terrain.ChunkKey
	vd     uint32
}

// viewers lists the sessions that have both a position and a view distance.
func (s *Server) viewers() []viewer {
	var out []viewer
	s.clients.Each(func(id entity.ID, _ *Client) {
		pl, ok := s.entities.Player.Get(id)
		if !ok || pl.ViewDistance == nil {
			return
		}
		pos, ok := s.entities.Pos.Get(id)
		if !ok {
			return
		}
		out = append(out, viewer{id: id, center: terrain.KeyAt(pos), vd: *pl.ViewDistance})
	})
	return out
}

func anyInView(vs []viewer, key terrain.ChunkKey) bool {
	for _, v := range vs {
		if interest.ChunkInView(v.center, key, v.vd) {
			return true
		}
	}
	return false
}

// applyBlockChanges writes the tick's edit buffer into the terrain and
// hands every edited chunk to the saver.
func (s *Server) applyBlockChanges() {
	if _, dropped := s.terrain.ApplyBlockChanges(s.blockChanges); dropped > 0 {
		s.dropped += uint64(dropped)
		s.log.Debug("block edits on unloaded terrain dropped", zap.Int("count", dropped))
	}
	for key, c := range s.terrain.DrainDirtied() {
		s.saver.RequestSave(key, c)
	}
}

// consumeGenerated takes at most one finished chunk.
func (s *Server) consumeGenerated() {
	r, ok := s.gen.Poll()
	if !ok {
		return
	}
	s.terrain.Insert(r.Key, r.Chunk)
	if !s.cfg.Peaceful {
		s.spawnNPCs(r.Supplement)
	}
}

// evictChunks drops loaded chunks and pending requests no viewer can see.
func (s *Server) evictChunks() {
	vs := s.viewers()
	for _, key := range s.terrain.Keys() {
		if !anyInView(vs, key) {
			s.terrain.Remove(key)
		}
	}
	for _, key := range s.gen.PendingKeys() {
		if !anyInView(vs, key) {
			s.gen.Forget(key)
		}
	}
}

// syncTerrain pushes new and modified chunks to the viewers that can see
// them, then one batch of single-block edits to everyone in the world.
func (s *Server) syncTerrain() {
	changes := s.terrain.Changes()
	vs := s.viewers()
	for _, key := range changes.UpdatedChunks() {
		c, ok := s.terrain.Get(key)
		if !ok {
			continue
		}
		var msg protocol.ServerMsg
		for _, v := range vs {
			if !interest.ChunkInView(v.center, key, v.vd) {
				continue
			}
			if msg == nil {
				msg = protocol.TerrainChunkUpdate{Chunk: c.Record(key)}
			}
			s.clients.Notify(v.id, msg)
		}
	}

	if blocks := changes.SortedBlocks(); len(blocks) > 0 {
		s.clients.NotifyInWorldIf(protocol.TerrainBlockUpdates{Blocks: blocks}, nil)
	}
}
