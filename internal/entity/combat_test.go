package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fighter is a player character, so physics leaves its position alone.
func fighter(s *Store, name string, pos Pos, ori Ori) ID {
	id := s.Create()
	s.Player.Set(id, Player{Alias: name})
	s.Stats.Set(id, NewStats(name))
	s.Controller.Set(id, Controller{})
	s.Pos.Set(id, pos)
	s.Vel.Set(id, Vel{})
	s.Ori.Set(id, ori)
	s.ActionState.Set(id, ActionState{})
	return id
}

func TestInSwing(t *testing.T) {
	cases := []struct {
		name        string
		ori, target Pos
		want        bool
	}{
		{"ahead", Pos{X: 1}, Pos{X: 2}, true},
		{"slightly off axis", Pos{X: 1}, Pos{X: 2, Y: 0.3}, true},
		{"wide of the arc", Pos{X: 1}, Pos{X: 2, Y: 2}, false},
		{"behind", Pos{X: 1}, Pos{X: -2}, false},
		{"out of reach", Pos{X: 1}, Pos{X: 4.5}, false},
		{"directly above", Pos{X: 1}, Pos{Z: 1}, true},
		{"no facing", Pos{}, Pos{X: 1}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, inSwing(Pos{}, c.ori, c.target), c.name)
	}
}

func TestStep_AttackLandsOncePerSwing(t *testing.T) {
	s := NewStore(0)
	ann := fighter(s, "ann", Pos{Z: 10}, Ori{X: 1})
	bob := fighter(s, "bob", Pos{X: 2, Z: 10}, Ori{X: -1})
	s.Controller.Set(ann, Controller{Attack: true})

	require.NoError(t, s.Step(context.Background(), 0.1, flatGround(0)))
	st, _ := s.Stats.Get(bob)
	assert.Equal(t, 100-BaseDamage, st.Health.Current)
	assert.Equal(t, ann, st.Health.LastHitBy)
	v, _ := s.Vel.Get(bob)
	assert.Equal(t, Vel{X: KnockbackXY, Z: KnockbackZ}, v)
	assert.True(t, s.ForceUpdate.Has(bob))
	as, _ := s.ActionState.Get(ann)
	assert.True(t, as.Attacking)

	s.Controller.Set(ann, Controller{})
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Step(context.Background(), 0.1, flatGround(0)))
	}
	st, _ = s.Stats.Get(bob)
	assert.Equal(t, 100-BaseDamage, st.Health.Current)
	assert.False(t, s.Attack.Has(ann))
	as, _ = s.ActionState.Get(ann)
	assert.False(t, as.Attacking)

	own, _ := s.Stats.Get(ann)
	assert.Equal(t, 100, own.Health.Current)
}

func TestStep_AttackMisses(t *testing.T) {
	s := NewStore(0)
	ann := fighter(s, "ann", Pos{Z: 10}, Ori{X: 1})
	behind := fighter(s, "behind", Pos{X: -2, Z: 10}, Ori{})
	far := fighter(s, "far", Pos{X: 6, Z: 10}, Ori{})
	s.Controller.Set(ann, Controller{Attack: true})

	require.NoError(t, s.Step(context.Background(), 0.1, flatGround(0)))
	for _, id := range []ID{behind, far} {
		st, _ := s.Stats.Get(id)
		assert.Equal(t, 100, st.Health.Current)
		assert.Zero(t, st.Health.LastHitBy)
		assert.False(t, s.ForceUpdate.Has(id))
	}
}

func TestStep_DeadCannotAttack(t *testing.T) {
	s := NewStore(0)
	ann := fighter(s, "ann", Pos{Z: 10}, Ori{X: 1})
	bob := fighter(s, "bob", Pos{X: 2, Z: 10}, Ori{})
	s.Stats.Update(ann, func(st *Stats) { st.Health.Current = 0 })
	s.Controller.Set(ann, Controller{Attack: true})

	require.NoError(t, s.Step(context.Background(), 0.1, flatGround(0)))
	assert.False(t, s.Attack.Has(ann))
	st, _ := s.Stats.Get(bob)
	assert.Equal(t, 100, st.Health.Current)
}

func TestStep_AttackKillsAndCreditsAttacker(t *testing.T) {
	s := NewStore(0)
	ann := fighter(s, "ann", Pos{Z: 10}, Ori{X: 1})
	bob := fighter(s, "bob", Pos{X: 2, Z: 10}, Ori{})
	s.Stats.Update(bob, func(st *Stats) { st.Health.Current = BaseDamage })
	s.Controller.Set(ann, Controller{Attack: true})

	require.NoError(t, s.Step(context.Background(), 0.1, flatGround(0)))
	d, ok := s.Dying.Get(bob)
	require.True(t, ok)
	assert.Equal(t, ann, d.Killer)
}
