package entity

import (
	"sort"
	"sync/atomic"
)

type ChangeKind uint8

const (
	Created ChangeKind = iota + 1
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is an entity lifecycle notification.
type Change struct {
	Kind ChangeKind
	ID   ID
}

// DefaultChangeBuffer sizes the change channel.
const DefaultChangeBuffer = 1 << 14

// Store is the component store. It is not safe for concurrent mutation;
// the tick goroutine owns it.
type Store struct {
	next    ID
	alive   map[ID]struct{}
	changes chan Change
	dropped atomic.Uint64

	Pos         *Table[Pos]
	Vel         *Table[Vel]
	Ori         *Table[Ori]
	ActionState *Table[ActionState]
	Controller  *Table[Controller]
	Player      *Table[Player]
	Stats       *Table[Stats]
	Body        *Table[Body]
	Scale       *Table[float32]
	Inventory   *Table[Inventory]
	Item        *Table[Item]
	Agent       *Table[Agent]
	Dying       *Table[Dying]
	Attack      *Table[Attack]

	CanBuild        *Table[Marker]
	Admin           *Table[Marker]
	ForceUpdate     *Table[Marker]
	InventoryUpdate *Table[Marker]
	Respawning      *Table[Marker]

	droppers []func(ID)
}

func NewStore(changeBuffer int) *Store {
	if changeBuffer <= 0 {
		changeBuffer = DefaultChangeBuffer
	}
	s := &Store{
		alive:   map[ID]struct{}{},
		changes: make(chan Change, changeBuffer),

		Pos:         newTable[Pos](),
		Vel:         newTable[Vel](),
		Ori:         newTable[Ori](),
		ActionState: newTable[ActionState](),
		Controller:  newTable[Controller](),
		Player:      newTable[Player](),
		Stats:       newTable[Stats](),
		Body:        newTable[Body](),
		Scale:       newTable[float32](),
		Inventory:   newTable[Inventory](),
		Item:        newTable[Item](),
		Agent:       newTable[Agent](),
		Dying:       newTable[Dying](),
		Attack:      newTable[Attack](),

		CanBuild:        newTable[Marker](),
		Admin:           newTable[Marker](),
		ForceUpdate:     newTable[Marker](),
		InventoryUpdate: newTable[Marker](),
		Respawning:      newTable[Marker](),
	}
	s.droppers = []func(ID){
		s.Pos.drop, s.Vel.drop, s.Ori.drop, s.ActionState.drop, s.Controller.drop,
		s.Player.drop, s.Stats.drop, s.Body.drop, s.Scale.drop, s.Inventory.drop,
		s.Item.drop, s.Agent.drop, s.Dying.drop, s.Attack.drop,
		s.CanBuild.drop, s.Admin.drop, s.ForceUpdate.drop, s.InventoryUpdate.drop, s.Respawning.drop,
	}
	return s
}

// Create allocates a fresh entity. Components are attached by the caller.
func (s *Store) Create() ID {
	s.next++
	id := s.next
	s.alive[id] = struct{}{}
	s.emit(Change{Kind: Created, ID: id})
	return id
}

// Delete removes the entity and all of its components.
func (s *Store) Delete(id ID) bool {
	if _, ok := s.alive[id]; !ok {
		return false
	}
	delete(s.alive, id)
	for _, d := range s.droppers {
		d(id)
	}
	s.emit(Change{Kind: Deleted, ID: id})
	return true
}

func (s *Store) Alive(id ID) bool {
	_, ok := s.alive[id]
	return ok
}

func (s *Store) Len() int { return len(s.alive) }

func (s *Store) IDs() []ID {
	ids := make([]ID, 0, len(s.alive))
	for id := range s.alive {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Changes delivers lifecycle notifications. When the buffer is full new
// notifications are dropped and counted.
func (s *Store) Changes() <-chan Change { return s.changes }

// DrainChanges empties the change channel without blocking.
func (s *Store) DrainChanges() []Change {
	var out []Change
	for {
		select {
		case c := <-s.changes:
			out = append(out, c)
		default:
			return out
		}
	}
}

func (s *Store) DroppedChanges() uint64 { return s.dropped.Load() }

func (s *Store) emit(c Change) {
	select {
	case s.changes <- c:
	default:
		s.dropped.Add(1)
	}
}
