package server

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/terrain"
)

// handleMessage applies one inbound message. It reports whether the session
// should end.
func (s *Server) handleMessage(id entity.ID, c *Client, msg protocol.ClientMsg) bool {
	out := Transition(c.state, msg)
	switch out.Verdict {
	case Ignore:
		return false
	case Drop:
		return true
	case Reject:
		c.ErrorState(out.Err)
		return false
	case Malformed:
		reason := "unrecognised message"
		if inv, ok := msg.(protocol.Invalid); ok && inv.Reason != "" {
			reason = inv.Reason
		}
		c.log.Debug("bad request", zap.String("reason", reason))
		c.Notify(protocol.Error{Code: protocol.ErrProtoBadRequest, Message: reason})
		return false
	}

	switch m := msg.(type) {
	case protocol.RequestState:
		if m.State == protocol.Spectator || m.State == protocol.Registered {
			s.leaveCharacter(id)
		}
		c.AllowState(out.Next)

	case protocol.Register:
		if !m.Player.Valid() {
			c.ErrorState(protocol.ErrImpossible)
			return false
		}
		if !s.auth.Query(m.Player.Alias, m.Password) {
			c.ErrorState(protocol.ErrDenied)
			return false
		}
		s.initializePlayer(id, c, m.Player)

	case protocol.EnterCharacter:
		s.createPlayerCharacter(id, c, m.Name, m.Body)

	case protocol.Controller:
		s.entities.Controller.Set(id, m.Controller)
		if m.Controller.Respawn && c.state == protocol.Dead {
			s.entities.Respawning.Set(id, entity.Marker{})
		}

	case protocol.Chat:
		if !c.chat.Allow() {
			c.Notify(protocol.Error{Code: protocol.ErrRateLimit, Message: "slow down"})
			return false
		}
		s.chat = append(s.chat, pendingChat{from: id, msg: m})

	case protocol.SetViewDistance:
		vd := min(m.ViewDistance, s.cfg.MaxViewDistance)
		s.entities.Player.Update(id, func(p *entity.Player) { p.ViewDistance = &vd })

	case protocol.SwapInventorySlots:
		s.entities.Inventory.Update(id, func(inv *entity.Inventory) { inv.Swap(m.A, m.B) })
		s.entities.InventoryUpdate.Set(id, entity.Marker{})

	case protocol.DropInventorySlot:
		s.dropItem(id, m.Slot)

	case protocol.PickUp:
		s.pickUp(id, m.UID)

	case protocol.PlayerPhysics:
		s.entities.Pos.Set(id, m.Pos)
		s.entities.Vel.Set(id, m.Vel)
		s.entities.Ori.Set(id, m.Ori)

	case protocol.BreakBlock:
		if s.entities.CanBuild.Has(id) {
			s.blockChanges.Set(m.Pos, terrain.Air)
		}

	case protocol.PlaceBlock:
		if s.entities.CanBuild.Has(id) && m.Block.Valid() {
			s.blockChanges.Set(m.Pos, m.Block)
		}

	case protocol.TerrainChunkRequest:
		if ch, ok := s.terrain.Get(m.Key); ok {
			c.Notify(protocol.TerrainChunkUpdate{Chunk: ch.Record(m.Key)})
		} else {
			s.gen.Request(m.Key)
		}

	case protocol.Ping:
		c.Notify(protocol.Pong{})
	}
	return false
}

// initializePlayer attaches the player and brings the client up to date on
// every entity's physics.
func (s *Server) initializePlayer(id entity.ID, c *Client, p entity.Player) {
	p.ViewDistance = nil
	s.entities.Player.Set(id, p)

	for _, eid := range s.entities.Pos.IDs() {
		pos, _ := s.entities.Pos.Get(eid)
		c.Notify(protocol.EntityPos{UID: eid, Pos: pos})
		if v, ok := s.entities.Vel.Get(eid); ok {
			c.Notify(protocol.EntityVel{UID: eid, Vel: v})
		}
		if o, ok := s.entities.Ori.Get(eid); ok {
			c.Notify(protocol.EntityOri{UID: eid, Ori: o})
		}
		if a, ok := s.entities.ActionState.Get(eid); ok {
			c.Notify(protocol.EntityActionState{UID: eid, ActionState: a})
		}
	}
	c.AllowState(protocol.Registered)
	c.log.Info("client registered", zap.String("alias", p.Alias))
}

func (s *Server) createPlayerCharacter(id entity.ID, c *Client, name string, body entity.Body) {
	e := s.entities
	e.Body.Set(id, body)
	e.Stats.Set(id, entity.NewStats(name))
	e.Controller.Set(id, entity.Controller{})
	e.Pos.Set(id, s.cfg.Spawn())
	e.Vel.Set(id, entity.Vel{})
	e.Ori.Set(id, entity.Ori{Y: 1})
	e.ActionState.Set(id, entity.ActionState{})
	if !e.Inventory.Has(id) {
		e.Inventory.Set(id, entity.NewInventory())
	}
	e.InventoryUpdate.Set(id, entity.Marker{})
	e.ForceUpdate.Set(id, entity.Marker{})

	pl, _ := e.Player.Get(id)
	if s.cfg.IsAdmin(pl.Alias) {
		e.Admin.Set(id, entity.Marker{})
		e.CanBuild.Set(id, entity.Marker{})
	}
	c.AllowState(protocol.Character)
	s.announce(protocol.ChatOnline, "["+pl.Alias+"] is now online.")
	c.log.Info("character entered", zap.String("alias", pl.Alias), zap.String("name", name))
}

// leaveCharacter strips the character body so a spectator or registered
// session no longer appears in the world.
func (s *Server) leaveCharacter(id entity.ID) {
	e := s.entities
	if !e.Body.Has(id) {
		return
	}
	e.Body.Remove(id)
	e.Stats.Remove(id)
	e.Controller.Remove(id)
	e.Pos.Remove(id)
	e.Vel.Remove(id)
	e.Ori.Remove(id)
	e.ActionState.Remove(id)
	e.Attack.Remove(id)
	delete(s.last, id)
}

func (s *Server) dropItem(id entity.ID, slot int) {
	var item entity.Item
	var ok bool
	s.entities.Inventory.Update(id, func(inv *entity.Inventory) { item, ok = inv.Remove(slot) })
	s.entities.InventoryUpdate.Set(id, entity.Marker{})
	if !ok {
		return
	}
	pos, hasPos := s.entities.Pos.Get(id)
	if !hasPos {
		return
	}
	ori, hasOri := s.entities.Ori.Get(id)
	if !hasOri || ori.Len() == 0 {
		ori = entity.Ori{Y: 1}
	}
	jitter := mathx.Vec3{X: rand.Float32() - 0.5, Y: rand.Float32() - 0.5, Z: rand.Float32() - 0.5}.Scale(4)
	vel := ori.Scale(5 / ori.Len()).Add(mathx.Vec3{Z: 10}).Add(jitter)

	pouch := s.createObject(pos.Add(mathx.Vec3{Z: 0.25}))
	s.entities.Item.Set(pouch, item)
	s.entities.Vel.Set(pouch, vel)
}

func (s *Server) createObject(pos mathx.Vec3) entity.ID {
	e := s.entities
	id := e.Create()
	e.Pos.Set(id, pos)
	e.Vel.Set(id, entity.Vel{})
	e.Ori.Set(id, entity.Ori{Y: 1})
	e.Body.Set(id, entity.Body{Kind: entity.BodyObject, Variant: "pouch"})
	e.ActionState.Set(id, entity.ActionState{})
	e.ForceUpdate.Set(id, entity.Marker{})
	return id
}

func (s *Server) pickUp(id, uid entity.ID) {
	defer s.entities.InventoryUpdate.Set(id, entity.Marker{})
	item, ok := s.entities.Item.Get(uid)
	if !ok {
		return
	}
	inserted := false
	s.entities.Inventory.Update(id, func(inv *entity.Inventory) { inserted = inv.Insert(item) })
	if inserted {
		s.entities.Delete(uid)
	}
}
