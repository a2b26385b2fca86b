package entity

import (
	"context"

	"golang.org/x/sync/errgroup"

	"voxelhost.ai/internal/mathx"
)

const (
	Gravity     = 50.0
	TerminalVel = 60.0

	groundFriction = 0.8

	// physicsBatch is the number of bodies one goroutine integrates.
	physicsBatch = 256
)

// Ground answers whether the voxel at pos is solid. ok is false when the
// voxel is not loaded.
type Ground func(pos mathx.Vec3i) (solid, ok bool)

type integrated struct {
	pos      Pos
	vel      Vel
	onGround bool
}

// Step runs the server-side systems for one tick: attacks land, passive
// bodies (NPCs and dropped items) fall and slide, and entities at zero
// health start dying.
// Player characters are client-authoritative and are not integrated.
//
// Integration fans out across goroutines reading a frozen view of the
// store; results are written back after every batch joined.
func (s *Store) Step(ctx context.Context, dt float64, ground Ground) error {
	s.stepCombat(dt)

	ids := make([]ID, 0, s.Vel.Len())
	for _, id := range s.Vel.IDs() {
		if s.Player.Has(id) || !s.Pos.Has(id) {
			continue
		}
		ids = append(ids, id)
	}

	out := make([]integrated, len(ids))
	g, _ := errgroup.WithContext(ctx)
	for lo := 0; lo < len(ids); lo += physicsBatch {
		hi := min(lo+physicsBatch, len(ids))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				p, _ := s.Pos.Get(ids[i])
				v, _ := s.Vel.Get(ids[i])
				out[i] = integrate(p, v, dt, ground)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, id := range ids {
		s.Pos.Set(id, out[i].pos)
		s.Vel.Set(id, out[i].vel)
		s.ActionState.Update(id, func(a *ActionState) {
			a.OnGround = out[i].onGround
			a.Moving = out[i].vel.Len() > 0.01
		})
	}

	for _, id := range s.Stats.IDs() {
		s.Stats.Update(id, func(st *Stats) {
			if st.Dead() && !st.IsDead {
				st.IsDead = true
				s.Dying.Set(id, Dying{Killer: st.Health.LastHitBy})
			}
		})
	}
	return nil
}

func integrate(p Pos, v Vel, dt float64, ground Ground) integrated {
	fdt := float32(dt)
	below := mathx.Vec3{X: p.X, Y: p.Y, Z: p.Z - 0.05}.Floor()
	solid, loaded := ground(below)
	if !loaded {
		// Unloaded terrain: freeze until the chunk arrives or the body is culled.
		return integrated{pos: p, vel: v}
	}
	if solid && v.Z <= 0 {
		v.Z = 0
		v.X *= groundFriction
		v.Y *= groundFriction
		p = p.Add(mathx.Vec3{X: v.X, Y: v.Y}.Scale(fdt))
		return integrated{pos: p, vel: v, onGround: true}
	}

	v.Z = max(v.Z-Gravity*fdt, -TerminalVel)
	next := p.Add(v.Scale(fdt))
	if v.Z < 0 {
		// Land on the first solid voxel crossed this step.
		col := next.Floor()
		for z := below.Z - 1; z >= col.Z; z-- {
			if s, ok := ground(mathx.Vec3i{X: col.X, Y: col.Y, Z: z}); ok && s {
				next.Z = float32(z + 1)
				v.Z = 0
				return integrated{pos: next, vel: v, onGround: true}
			}
		}
	}
	return integrated{pos: next, vel: v}
}
