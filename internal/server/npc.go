package server

import (
	"math/rand/v2"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/worldgen"
)

func (s *Server) spawnNPCs(sup worldgen.Supplement) {
	for _, npc := range sup.NPCs {
		name, body := "Humanoid", entity.Body{Kind: entity.BodyHumanoid}
		if npc.Kind == worldgen.NPCWolf {
			name, body = "Wolf", entity.Body{Kind: entity.BodyWolf}
		}
		stats := entity.NewStats(name)
		scale := float32(1)
		if npc.Boss {
			if rand.Float32() < 0.8 {
				name, body = "Humanoid", entity.Body{Kind: entity.BodyHumanoid}
				stats = entity.NewStats(name)
			}
			hp := 500 + rand.IntN(400)
			stats.Health = entity.Health{Current: hp, Maximum: hp}
			scale = 2.5 + rand.Float32()
		}

		e := s.entities
		id := e.Create()
		e.Pos.Set(id, npc.Pos)
		e.Vel.Set(id, entity.Vel{})
		e.Ori.Set(id, entity.Ori{Y: 1})
		e.Controller.Set(id, entity.Controller{})
		e.Body.Set(id, body)
		e.Stats.Set(id, stats)
		e.ActionState.Set(id, entity.ActionState{})
		e.Agent.Set(id, entity.Agent{Enemy: true, Home: npc.Pos})
		e.Scale.Set(id, scale)
	}
}

// cullAgents deletes NPCs standing on terrain that is no longer loaded.
func (s *Server) cullAgents() {
	for _, id := range s.entities.Agent.IDs() {
		pos, ok := s.entities.Pos.Get(id)
		if !ok {
			continue
		}
		if _, err := s.terrain.GetBlock(pos.Floor()); err != nil {
			s.entities.Delete(id)
		}
	}
}
