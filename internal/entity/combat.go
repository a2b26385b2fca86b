package entity

import "math"

const (
	AttackDuration = 0.5 // seconds
	// AttackWindup is how long into a swing the hit lands.
	AttackWindup = 0.1
	AttackRange  = 4.0
	BaseDamage   = 10

	KnockbackXY = 2.0
	KnockbackZ  = 2.0
)

// Attack is a swing in progress.
type Attack struct {
	Elapsed float64
	Applied bool
}

// stepCombat starts swings for entities whose controller asks to attack,
// advances running swings, and lands each swing once on everything in
// range in front of the attacker.
func (s *Store) stepCombat(dt float64) {
	for _, id := range s.Controller.IDs() {
		ctl, _ := s.Controller.Get(id)
		if !ctl.Attack || s.Attack.Has(id) || !s.canAct(id) {
			continue
		}
		s.Attack.Set(id, Attack{})
		s.ActionState.Update(id, func(a *ActionState) { a.Attacking = true })
	}

	for _, id := range s.Attack.IDs() {
		atk, _ := s.Attack.Get(id)
		atk.Elapsed += dt
		if !atk.Applied && atk.Elapsed >= AttackWindup {
			atk.Applied = true
			if s.canAct(id) {
				s.landHit(id)
			}
		}
		if atk.Elapsed >= AttackDuration {
			s.Attack.Remove(id)
			s.ActionState.Update(id, func(a *ActionState) { a.Attacking = false })
			continue
		}
		s.Attack.Set(id, atk)
	}
}

func (s *Store) canAct(id ID) bool {
	st, ok := s.Stats.Get(id)
	return ok && !st.IsDead && !st.Dead() && s.Pos.Has(id) && s.Ori.Has(id)
}

func (s *Store) landHit(attacker ID) {
	pos, _ := s.Pos.Get(attacker)
	ori, _ := s.Ori.Get(attacker)

	for _, target := range s.Stats.IDs() {
		if target == attacker {
			continue
		}
		tpos, ok := s.Pos.Get(target)
		if !ok || !inSwing(pos, ori, tpos) {
			continue
		}
		hit := false
		s.Stats.Update(target, func(st *Stats) {
			if st.IsDead || st.Dead() {
				return
			}
			st.Health.Current -= BaseDamage
			st.Health.LastHitBy = attacker
			hit = true
		})
		if !hit {
			continue
		}
		push := tpos.Sub(pos)
		if l := push.Len(); l > 0 {
			push = push.Scale(KnockbackXY / l)
		}
		v, _ := s.Vel.Get(target)
		v = v.Add(push)
		v.Z = KnockbackZ
		s.Vel.Set(target, v)
		s.ForceUpdate.Set(target, Marker{})
	}
}

// inSwing reports whether target is within reach and inside the arc the
// attacker faces. The arc narrows with distance: a unit-wide target
// subtends atan(1/d) at distance d.
func inSwing(pos, ori, target Pos) bool {
	d := target.Sub(pos)
	if d.Len() >= AttackRange {
		return false
	}
	dx, dy := float64(d.X), float64(d.Y)
	flat := math.Hypot(dx, dy)
	if flat == 0 {
		return true
	}
	fx, fy := float64(ori.X), float64(ori.Y)
	facing := math.Hypot(fx, fy)
	if facing == 0 {
		return false
	}
	cos := (fx*dx + fy*dy) / (facing * flat)
	angle := math.Acos(max(-1, min(1, cos)))
	return angle < math.Atan(1/flat)
}
