package server

import (
	"fmt"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/server/interest"
)

// lastSent is what clients were last told about one entity.
type lastSent struct {
	pos, vel, ori mathx.Vec3
	action        entity.ActionState

	hasPos, hasVel, hasOri, hasAction bool
}

func (s *Server) snapshot(id entity.ID) protocol.EntitySnapshot {
	e := s.entities
	snap := protocol.EntitySnapshot{UID: id, Admin: e.Admin.Has(id)}
	if b, ok := e.Body.Get(id); ok {
		snap.Body = &b
	}
	if st, ok := e.Stats.Get(id); ok {
		snap.Name = st.Name
	}
	if pl, ok := e.Player.Get(id); ok {
		snap.Alias = pl.Alias
	}
	if p, ok := e.Pos.Get(id); ok {
		snap.Pos = &p
	}
	if v, ok := e.Vel.Get(id); ok {
		snap.Vel = &v
	}
	if o, ok := e.Ori.Get(id); ok {
		snap.Ori = &o
	}
	if a, ok := e.ActionState.Get(id); ok {
		snap.ActionState = &a
	}
	if sc, ok := e.Scale.Get(id); ok {
		snap.Scale = sc
	}
	if it, ok := e.Item.Get(id); ok {
		snap.Item = &it
	}
	return snap
}

func (s *Server) snapshotAll() []protocol.EntitySnapshot {
	ids := s.entities.IDs()
	out := make([]protocol.EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.snapshot(id))
	}
	return out
}

// syncEntityLifecycle forwards the store's create and delete notifications.
func (s *Server) syncEntityLifecycle() {
	for _, ch := range s.entities.DrainChanges() {
		switch ch.Kind {
		case entity.Created:
			if s.entities.Alive(ch.ID) {
				s.clients.NotifyRegistered(protocol.EntityCreated{Entity: s.snapshot(ch.ID)})
			}
		case entity.Deleted:
			delete(s.last, ch.ID)
			s.clients.NotifyRegistered(protocol.EntityDeleted{UID: ch.ID})
		}
	}
}

func (s *Server) handleDeaths() {
	e := s.entities
	for _, id := range e.Dying.IDs() {
		d, _ := e.Dying.Get(id)

		if pl, ok := e.Player.Get(id); ok {
			msg := pl.Alias + " died"
			if killer, ok := e.Player.Get(d.Killer); ok && d.Killer != 0 {
				msg = fmt.Sprintf("%s was killed by %s", pl.Alias, killer.Alias)
			}
			s.clients.NotifyRegistered(protocol.Chat{Kind: protocol.ChatKill, Message: msg})
		}

		if victim, ok := e.Stats.Get(id); ok && d.Killer != 0 && d.Killer != id {
			exp := victim.Health.Maximum/10 + victim.Level*10
			e.Stats.Update(d.Killer, func(st *entity.Stats) { st.AddExp(exp) })
		}

		if c, ok := s.clients.Get(id); ok {
			e.Vel.Set(id, entity.Vel{})
			e.ForceUpdate.Set(id, entity.Marker{})
			c.ForceState(protocol.Dead)
			continue
		}
		e.Delete(id)
	}
}

func (s *Server) handleRespawns() {
	e := s.entities
	for _, id := range e.Respawning.IDs() {
		c, ok := s.clients.Get(id)
		if !ok {
			continue
		}
		c.AllowState(protocol.Character)
		e.Stats.Update(id, func(st *entity.Stats) { st.Revive() })
		e.Pos.Update(id, func(p *entity.Pos) { p.Z += 20 })
		e.ForceUpdate.Set(id, entity.Marker{})
	}
}

// inView reports whether viewer's client should hear about something at
// pos. Viewers without a position or a view distance see nothing.
func (s *Server) inView(viewer entity.ID, pos mathx.Vec3) bool {
	vp, ok := s.entities.Pos.Get(viewer)
	if !ok {
		return false
	}
	pl, ok := s.entities.Player.Get(viewer)
	if !ok || pl.ViewDistance == nil {
		return false
	}
	return interest.EntityInView(vp, pos, *pl.ViewDistance)
}

// syncPhysics sends every physics field that differs from what was last
// sent. The owner only hears about its own entity on a forced update.
func (s *Server) syncPhysics() {
	e := s.entities
	for _, id := range e.Pos.IDs() {
		pos, _ := e.Pos.Get(id)
		force := e.ForceUpdate.Has(id)
		keep := func(viewer entity.ID) bool {
			return (force && viewer == id) || s.inView(viewer, pos)
		}
		send := func(m protocol.ServerMsg) {
			if force {
				s.clients.NotifyInWorldIf(m, keep)
			} else {
				s.clients.NotifyInWorldIfExcept(id, m, keep)
			}
		}

		l := s.last[id]
		if !l.hasPos || l.pos != pos {
			l.pos, l.hasPos = pos, true
			send(protocol.EntityPos{UID: id, Pos: pos})
		}
		if v, ok := e.Vel.Get(id); ok && (!l.hasVel || l.vel != v) {
			l.vel, l.hasVel = v, true
			send(protocol.EntityVel{UID: id, Vel: v})
		}
		if o, ok := e.Ori.Get(id); ok && (!l.hasOri || l.ori != o) {
			l.ori, l.hasOri = o, true
			send(protocol.EntityOri{UID: id, Ori: o})
		}
		if a, ok := e.ActionState.Get(id); ok && (!l.hasAction || l.action != a) {
			l.action, l.hasAction = a, true
			send(protocol.EntityActionState{UID: id, ActionState: a})
		}
		s.last[id] = l
	}
}

func (s *Server) syncInventories() {
	for _, id := range s.entities.InventoryUpdate.IDs() {
		if inv, ok := s.entities.Inventory.Get(id); ok {
			s.clients.Notify(id, protocol.InventoryUpdate{Inventory: inv.Clone()})
		}
	}
}
