package entity

import "voxelhost.ai/internal/mathx"

type ActionState struct {
	Moving    bool `json:"moving"`
	OnGround  bool `json:"on_ground"`
	Attacking bool `json:"attacking"`
	Rolling   bool `json:"rolling"`
	Gliding   bool `json:"gliding"`
	Wielding  bool `json:"wielding"`
}

// Controller is the latest input a client reported for its character.
type Controller struct {
	Move    mathx.Vec3 `json:"move"`
	Look    mathx.Vec3 `json:"look"`
	Jump    bool       `json:"jump,omitempty"`
	Attack  bool       `json:"attack,omitempty"`
	Roll    bool       `json:"roll,omitempty"`
	Glide   bool       `json:"glide,omitempty"`
	Respawn bool       `json:"respawn,omitempty"`
}

type Player struct {
	Alias        string  `json:"alias"`
	ViewDistance *uint32 `json:"view_distance,omitempty"`
}

// MaxAliasLen bounds player aliases.
const MaxAliasLen = 32

// Valid reports whether the alias is acceptable.
func (p Player) Valid() bool {
	if p.Alias == "" || len(p.Alias) > MaxAliasLen {
		return false
	}
	for _, r := range p.Alias {
		if r < 0x20 || r == 0x7f || r == '[' || r == ']' {
			return false
		}
	}
	return true
}

type Health struct {
	Current int `json:"current"`
	Maximum int `json:"maximum"`
	// LastHitBy is zero when nothing has hurt the entity.
	LastHitBy ID `json:"last_hit_by,omitempty"`
}

type Stats struct {
	Name   string `json:"name"`
	Health Health `json:"health"`
	Level  int    `json:"level"`
	Exp    int    `json:"exp"`
	// IsDead latches once the death has been handled, until Revive.
	IsDead bool `json:"is_dead,omitempty"`
}

func NewStats(name string) Stats {
	return Stats{Name: name, Health: Health{Current: 100, Maximum: 100}, Level: 1}
}

func (s *Stats) Dead() bool { return s.Health.Current <= 0 }

// Revive restores full health.
func (s *Stats) Revive() {
	s.Health.Current = s.Health.Maximum
	s.Health.LastHitBy = 0
	s.IsDead = false
}

// AddExp grants experience and levels up every 100 points per level.
func (s *Stats) AddExp(n int) {
	s.Exp += n
	for s.Exp >= s.Level*100 {
		s.Exp -= s.Level * 100
		s.Level++
	}
}

type BodyKind string

const (
	BodyHumanoid BodyKind = "humanoid"
	BodyWolf     BodyKind = "wolf"
	BodyObject   BodyKind = "object"
)

type Body struct {
	Kind    BodyKind `json:"kind"`
	Variant string   `json:"variant,omitempty"`
}

type Item struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// InventorySlots is the size of a new inventory.
const InventorySlots = 24

type Inventory struct {
	Slots []*Item `json:"slots"`
}

func NewInventory() Inventory {
	return Inventory{Slots: make([]*Item, InventorySlots)}
}

// Clone copies the slot slice so the copy can be mutated independently.
func (inv Inventory) Clone() Inventory {
	return Inventory{Slots: append([]*Item(nil), inv.Slots...)}
}

// Insert puts item in the first free slot.
func (inv *Inventory) Insert(item Item) bool {
	for i, s := range inv.Slots {
		if s == nil {
			it := item
			inv.Slots[i] = &it
			return true
		}
	}
	return false
}

func (inv *Inventory) Swap(a, b int) bool {
	if a < 0 || b < 0 || a >= len(inv.Slots) || b >= len(inv.Slots) {
		return false
	}
	inv.Slots[a], inv.Slots[b] = inv.Slots[b], inv.Slots[a]
	return true
}

// Remove empties a slot and returns what was in it.
func (inv *Inventory) Remove(slot int) (Item, bool) {
	if slot < 0 || slot >= len(inv.Slots) || inv.Slots[slot] == nil {
		return Item{}, false
	}
	it := *inv.Slots[slot]
	inv.Slots[slot] = nil
	return it, true
}

// Agent marks server-controlled NPCs.
type Agent struct {
	Enemy bool       `json:"enemy"`
	Home  mathx.Vec3 `json:"home"`
}

type Dying struct {
	// Killer is zero for environmental deaths.
	Killer ID
}

// Physics components share the vector type.
type (
	Pos = mathx.Vec3
	Vel = mathx.Vec3
	Ori = mathx.Vec3
)
